package services

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"affiliate-poster/config"
)

func TestGenerateKeywordsCartesian(t *testing.T) {
	kw := GenerateKeywords()
	if len(kw) != len(Modifiers)*len(Products) {
		t.Fatalf("count: got %d, want %d", len(kw), len(Modifiers)*len(Products))
	}
	if kw[0] != "Best Budget Mechanical Keyboard" {
		t.Errorf("first keyword: got %q", kw[0])
	}
	if kw[len(kw)-1] != "Must Have Silicone Utensils" {
		t.Errorf("last keyword: got %q", kw[len(kw)-1])
	}

	seen := make(map[string]bool, len(kw))
	for _, k := range kw {
		if seen[k] {
			t.Fatalf("duplicate keyword %q", k)
		}
		seen[k] = true
	}
}

func TestKeywordFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keywords.txt")
	want := []string{"Portable Power Bank", "Smart Bulb"}
	if err := WriteKeywordFile(path, want); err != nil {
		t.Fatalf("WriteKeywordFile: %v", err)
	}

	got, err := LoadKeywordFile(path)
	if err != nil {
		t.Fatalf("LoadKeywordFile: %v", err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLoadKeywordFileSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.txt")
	os.WriteFile(path, []byte("\n  Gaming Mouse  \n\n\tDash Cam\n"), 0644)

	got, err := LoadKeywordFile(path)
	if err != nil {
		t.Fatalf("LoadKeywordFile: %v", err)
	}
	if len(got) != 2 || got[0] != "Gaming Mouse" || got[1] != "Dash Cam" {
		t.Errorf("got %q", got)
	}
}

func TestLoadKeywordFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadKeywordFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}

	empty := filepath.Join(dir, "empty.txt")
	os.WriteFile(empty, []byte("\n \n"), 0644)
	if _, err := LoadKeywordFile(empty); !errors.Is(err, ErrNoKeywords) {
		t.Errorf("empty file: got %v, want ErrNoKeywords", err)
	}
}

func TestSelectorModes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	cat, err := NewSelector(&config.Config{QueryMode: config.QueryCategory, CategoryIDs: []string{"44", "7"}}, rng)
	if err != nil {
		t.Fatalf("category selector: %v", err)
	}
	for i := 0; i < 20; i++ {
		q := cat.Next()
		if q.Keyword != "" || (q.CategoryID != "44" && q.CategoryID != "7") {
			t.Fatalf("unexpected category query %+v", q)
		}
	}

	gen, err := NewSelector(&config.Config{QueryMode: config.QueryKeyword, KeywordSource: config.KeywordsFromGenerator}, rng)
	if err != nil {
		t.Fatalf("generated selector: %v", err)
	}
	if gen.Size() != len(Modifiers)*len(Products) {
		t.Errorf("generated size: got %d", gen.Size())
	}

	_, err = NewSelector(&config.Config{QueryMode: config.QueryKeyword, KeywordSource: config.KeywordsFromFile,
		KeywordFile: filepath.Join(t.TempDir(), "absent.txt")}, rng)
	if err == nil {
		t.Error("expected error for absent keyword file")
	}
}

func TestSelectorCoversCandidates(t *testing.T) {
	s := &Selector{keywords: []string{"a", "b", "c"}, rng: rand.New(rand.NewSource(42))}
	counts := map[string]int{}
	for i := 0; i < 300; i++ {
		counts[s.Next().Keyword]++
	}
	for _, k := range []string{"a", "b", "c"} {
		if counts[k] == 0 {
			t.Errorf("keyword %q never selected", k)
		}
	}
}
