package index

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func sampleIndex() *Index {
	return New(map[string][]string{
		"park":       {"A", "B"},
		"waterfront": {"B", "C"},
		"museum":     {"D"},
	})
}

func TestLoadSingleRow(t *testing.T) {
	idx, err := Load(strings.NewReader("keyword,locations\npark,West Park; East Park\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := idx.Lookup("park")
	if !ok {
		t.Fatal("expected park entry")
	}
	if want := []string{"West Park", "East Park"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 keyword, got %d", idx.Len())
	}
}

func TestLoadLowercasesKeywordsAndStripsNewlines(t *testing.T) {
	data := "keyword,locations\n\"Beach\",\"Sunset Beach;\n North Shore\"\n"
	idx, err := Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := idx.Lookup("beach")
	if !ok {
		t.Fatal("expected lowercased keyword")
	}
	if want := []string{"Sunset Beach", "North Shore"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLoadDuplicateKeywordLastWins(t *testing.T) {
	data := "keyword,locations\npark,First\nPARK,Second; Third\n"
	idx, err := Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, _ := idx.Lookup("park")
	if want := []string{"Second", "Third"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLoadAcceptsBareQuotes(t *testing.T) {
	data := "keyword,locations\nbar,Joe's \"Famous\" Pub; Dock 5\n"
	idx, err := Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := idx.Lookup("bar")
	if !ok {
		t.Fatal("expected bar entry")
	}
	if want := []string{`Joe's "Famous" Pub`, "Dock 5"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestLoadRejectsShortRow(t *testing.T) {
	if _, err := Load(strings.NewReader("keyword,locations\npark\n")); err == nil {
		t.Fatal("expected error for row without locations")
	}
}

func TestLoadRejectsEmptyInput(t *testing.T) {
	if _, err := Load(strings.NewReader("")); err == nil {
		t.Fatal("expected error for missing header")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inverted-index.csv")
	if err := os.WriteFile(path, []byte("keyword,locations\nzoo,City Zoo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if got := idx.Locations(); !reflect.DeepEqual(got, []string{"City Zoo"}) {
		t.Fatalf("unexpected locations: %v", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMatchUnionsKeywords(t *testing.T) {
	got := sampleIndex().Match("I want to visit a park near the waterfront.")
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMatchFallsBackToAllLocations(t *testing.T) {
	idx := sampleIndex()
	all := []string{"A", "B", "C", "D"}
	for _, text := range []string{"", "TAKE! ME! ANYWHERE!", "   ", "parking lot"} {
		if got := idx.Match(text); !reflect.DeepEqual(got, all) {
			t.Fatalf("Match(%q) = %v, want %v", text, got, all)
		}
	}
}

func TestMatchIgnoresCaseAndPunctuation(t *testing.T) {
	idx := sampleIndex()
	want := idx.Match("park")
	for _, text := range []string{"Park!", "PARK", "(park)", "park...", "\"Park\"?"} {
		if got := idx.Match(text); !reflect.DeepEqual(got, want) {
			t.Fatalf("Match(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestMatchResultIsSubsetOfAllLocations(t *testing.T) {
	idx := sampleIndex()
	all := make(map[string]bool)
	for _, location := range idx.Locations() {
		all[location] = true
	}
	for _, text := range []string{"museum", "park museum", "waterfront, museum & park"} {
		for _, location := range idx.Match(text) {
			if !all[location] {
				t.Fatalf("Match(%q) returned unknown location %q", text, location)
			}
		}
	}
	if got := idx.Match("museum"); !reflect.DeepEqual(got, []string{"D"}) {
		t.Fatalf("expected only museum locations, got %v", got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Hello, World! It's a-OK_now", DefaultPunctuation)
	want := []string{"hello", "world", "it", "s", "a", "ok", "now"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWithPunctuation(t *testing.T) {
	idx := New(map[string][]string{"park": {"A"}, "park!": {"B"}}, WithPunctuation(","))
	if got := idx.Match("park!"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("expected custom punctuation to keep '!', got %v", got)
	}
}

func TestSearchReportsKeywordsAndFallback(t *testing.T) {
	idx := sampleIndex()

	res := idx.Search("Park by the park, then the WATERFRONT")
	if want := []string{"park", "waterfront"}; !reflect.DeepEqual(res.Keywords, want) {
		t.Fatalf("expected keywords %v, got %v", want, res.Keywords)
	}
	if res.Fallback {
		t.Fatal("did not expect fallback")
	}

	res = idx.Search("")
	if !res.Fallback || len(res.Keywords) != 0 {
		t.Fatalf("expected fallback without keywords, got %+v", res)
	}
	if !reflect.DeepEqual(res.Locations, idx.Locations()) {
		t.Fatalf("expected all locations, got %v", res.Locations)
	}
}
