package index

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// DefaultPunctuation lists the runes replaced by a space before a transcript
// is split into keywords.
const DefaultPunctuation = `!()-[]{};:'"\, <>./?@#$%^&*_~`

// LocationSeparator splits the locations column of an index row.
const LocationSeparator = "; "

// Index maps lowercase keywords to the locations tagged with them. It is
// immutable once built and safe for concurrent readers.
type Index struct {
	entries     map[string][]string
	punctuation string
}

// Option customizes an Index.
type Option func(*Index)

// WithPunctuation overrides the set of runes treated as word separators.
func WithPunctuation(set string) Option {
	return func(i *Index) {
		if set != "" {
			i.punctuation = set
		}
	}
}

// New builds an index from keyword → locations entries. Keywords are
// lowercased; the location slices are copied.
func New(entries map[string][]string, opts ...Option) *Index {
	idx := &Index{
		entries:     make(map[string][]string, len(entries)),
		punctuation: DefaultPunctuation,
	}
	for keyword, locations := range entries {
		idx.entries[strings.ToLower(keyword)] = append([]string(nil), locations...)
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// LoadFile reads an index from a CSV file on disk.
func LoadFile(path string, opts ...Option) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer file.Close()

	idx, err := Load(file, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}

// Load parses a two-column CSV stream: a header row, then rows of keyword and
// "; "-separated locations. Later rows win on duplicate keywords.
func Load(r io.Reader, opts ...Option) (*Index, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("index has no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	entries := make(map[string][]string)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(row) < 2 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected keyword and locations columns, got %d", line, len(row))
		}
		values := strings.ReplaceAll(row[1], "\n", "")
		entries[strings.ToLower(row[0])] = strings.Split(values, LocationSeparator)
	}

	idx := New(nil, opts...)
	idx.entries = entries
	return idx, nil
}

// Len reports the number of keywords.
func (i *Index) Len() int {
	return len(i.entries)
}

// Lookup returns the locations tagged with keyword, which must already be
// lowercase.
func (i *Index) Lookup(keyword string) ([]string, bool) {
	locations, ok := i.entries[keyword]
	if !ok {
		return nil, false
	}
	return append([]string(nil), locations...), true
}

// Keywords returns every keyword in sorted order.
func (i *Index) Keywords() []string {
	keywords := make([]string, 0, len(i.entries))
	for keyword := range i.entries {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)
	return keywords
}

// Locations returns the distinct locations across all entries, sorted.
func (i *Index) Locations() []string {
	set := make(map[string]struct{})
	for _, locations := range i.entries {
		for _, location := range locations {
			set[location] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Tokenize turns a transcript into lowercase keywords.
func (i *Index) Tokenize(text string) []string {
	return Tokenize(text, i.punctuation)
}

// Result explains a match: the index keywords found in the transcript and the
// locations they resolved to.
type Result struct {
	Keywords  []string
	Locations []string
	// Fallback is set when no location matched and Locations holds every
	// location in the index.
	Fallback bool
}

// Search unions the locations of every keyword found in text. When nothing
// matches, including for an empty transcript, every location in the index is
// returned instead.
func (i *Index) Search(text string) Result {
	var res Result
	seen := make(map[string]bool)
	locations := make(map[string]struct{})
	for _, term := range i.Tokenize(text) {
		entry, ok := i.entries[term]
		if !ok {
			continue
		}
		if !seen[term] {
			seen[term] = true
			res.Keywords = append(res.Keywords, term)
		}
		for _, location := range entry {
			locations[location] = struct{}{}
		}
	}
	if len(locations) == 0 {
		res.Locations = i.Locations()
		res.Fallback = true
		return res
	}
	res.Locations = sortedKeys(locations)
	return res
}

// Match returns the sorted location set for text; see Search.
func (i *Index) Match(text string) []string {
	return i.Search(text).Locations
}

// Tokenize replaces every rune of punctuation with a space, lowercases and
// splits on whitespace.
func Tokenize(text, punctuation string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return ' '
		}
		return r
	}, text)
	return strings.Fields(strings.ToLower(cleaned))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
