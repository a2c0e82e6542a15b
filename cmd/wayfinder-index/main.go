package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loqalabs/loqa-wayfinder/internal/config"
	"github.com/loqalabs/loqa-wayfinder/internal/eventstore"
	"github.com/loqalabs/loqa-wayfinder/internal/index"
)

var version = "0.1.0-dev"

func main() {
	var (
		indexPath   string
		punctuation string
		text        string
		configPath  string
		sessionID   string
		limit       int
	)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.StringVar(&indexPath, "file", "inverted-index.csv", "Path to inverted index CSV")

	searchCmd := flag.NewFlagSet("search", flag.ExitOnError)
	searchCmd.StringVar(&indexPath, "file", "inverted-index.csv", "Path to inverted index CSV")
	searchCmd.StringVar(&punctuation, "punctuation", "", "Override the characters treated as word separators")
	searchCmd.StringVar(&text, "text", "", "Transcript to match")

	historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
	historyCmd.StringVar(&configPath, "config", "", "Path to configuration file")
	historyCmd.StringVar(&sessionID, "session", "", "Show events for this session instead of listing sessions")
	historyCmd.IntVar(&limit, "limit", 20, "Maximum rows to print")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'validate', 'search', 'history' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		err = runValidate(os.Stdout, indexPath)
	case "search":
		searchCmd.Parse(os.Args[2:])
		err = runSearch(os.Stdout, indexPath, punctuation, text)
	case "history":
		historyCmd.Parse(os.Args[2:])
		err = runHistory(context.Background(), os.Stdout, configPath, sessionID, limit)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runValidate(w io.Writer, path string) error {
	idx, err := index.LoadFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "index valid: %d keywords, %d locations\n", idx.Len(), len(idx.Locations()))
	return nil
}

func runSearch(w io.Writer, path, punctuation, text string) error {
	idx, err := index.LoadFile(path, index.WithPunctuation(punctuation))
	if err != nil {
		return err
	}
	res := idx.Search(text)
	fmt.Fprintf(w, "keywords: %s\n", strings.Join(res.Keywords, ", "))
	if res.Fallback {
		fmt.Fprintln(w, "no keyword matched; falling back to every location")
	}
	for _, location := range res.Locations {
		fmt.Fprintf(w, "  %s\n", location)
	}
	return nil
}

func runHistory(ctx context.Context, w io.Writer, configPath, sessionID string, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if !store.Persistent() {
		return fmt.Errorf("event store retention mode %q keeps no history", cfg.EventStore.RetentionMode)
	}

	if sessionID == "" {
		sessions, err := store.ListSessions(ctx, limit)
		if err != nil {
			return err
		}
		for _, sess := range sessions {
			fmt.Fprintf(w, "%s  %s  source=%s engine=%s\n", sess.CreatedAt.Format(time.RFC3339), sess.ID, sess.Source, sess.Engine)
		}
		return nil
	}

	events, err := store.ListSessionEvents(ctx, sessionID, limit)
	if err != nil {
		return err
	}
	for _, evt := range events {
		fmt.Fprintf(w, "%s  %-18s %s\n", evt.CreatedAt.Format(time.RFC3339), evt.Type, evt.Payload)
	}
	return nil
}
