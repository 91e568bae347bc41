package services

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"affiliate-poster/models"
)

func writePosts(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("---\n---\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanPostsOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	writePosts(t, dir,
		"2026-10-01-111.md",
		"2026-10-19-333.md",
		"2026-10-05-keyboard-x.md",
		"notes.txt",
		"draft.md",
	)
	os.Mkdir(filepath.Join(dir, "2026-10-20-dir.md"), 0755)

	posts, err := ScanPosts(dir)
	if err != nil {
		t.Fatalf("ScanPosts: %v", err)
	}
	want := []string{"333", "keyboard-x", "111"}
	if len(posts) != len(want) {
		t.Fatalf("got %d posts, want %d", len(posts), len(want))
	}
	for i, p := range posts {
		if p.Name != want[i] {
			t.Errorf("posts[%d] = %q; want %q", i, p.Name, want[i])
		}
	}
	if got := posts[0].Path(); got != "/2026/10/19/333.html" {
		t.Errorf("Path: got %q", got)
	}
}

func TestScanPostsMissingDir(t *testing.T) {
	posts, err := ScanPosts(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(posts) != 0 {
		t.Errorf("got %v, %v; want empty, nil", posts, err)
	}
}

func TestBuildSitemap(t *testing.T) {
	posts := []PostEntry{
		{Date: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), Name: "123"},
		{Date: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC), Name: "45"},
	}
	out, err := BuildSitemap("https://deals.example.com/", posts)
	if err != nil {
		t.Fatalf("BuildSitemap: %v", err)
	}
	xml := string(out)

	if !strings.HasPrefix(xml, "<?xml") {
		t.Error("missing XML header")
	}
	home := strings.Index(xml, "<loc>https://deals.example.com/</loc>")
	first := strings.Index(xml, "<loc>https://deals.example.com/2026/10/19/123.html</loc>")
	second := strings.Index(xml, "<loc>https://deals.example.com/2026/10/02/45.html</loc>")
	if home < 0 || first < 0 || second < 0 || !(home < first && first < second) {
		t.Errorf("unexpected sitemap:\n%s", xml)
	}
	if !strings.Contains(xml, `xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"`) {
		t.Error("missing sitemap namespace")
	}
	if strings.Count(xml, "<lastmod>2026-10-19</lastmod>") != 2 {
		t.Errorf("home lastmod should match the newest post:\n%s", xml)
	}
}

func TestBuildRobots(t *testing.T) {
	got := BuildRobots("https://deals.example.com/")
	if !strings.Contains(got, "Sitemap: https://deals.example.com/sitemap.xml") {
		t.Errorf("robots.txt: %q", got)
	}
}

func TestWriteSEO(t *testing.T) {
	postsDir := t.TempDir()
	writePosts(t, postsDir, "2026-10-19-123.md")
	outDir := filepath.Join(t.TempDir(), "site")

	n, err := WriteSEO("https://deals.example.com", postsDir, outDir)
	if err != nil {
		t.Fatalf("WriteSEO: %v", err)
	}
	if n != 1 {
		t.Errorf("posts listed: got %d, want 1", n)
	}
	for _, f := range []string{"sitemap.xml", "robots.txt"} {
		if _, err := os.Stat(filepath.Join(outDir, f)); err != nil {
			t.Errorf("%s not written: %v", f, err)
		}
	}

	if _, err := WriteSEO("  ", postsDir, outDir); err == nil {
		t.Error("expected error without a site url")
	}
}

func TestPrintReport(t *testing.T) {
	start := time.Unix(1700000000, 0)
	r := &models.RunReport{
		RunID:         "run-1",
		StartedAt:     start,
		FinishedAt:    start.Add(1500 * time.Millisecond),
		Target:        2,
		Queries:       3,
		FailedQueries: 1,
		Posted:        1,
		Skipped:       2,
		Files:         []string{"_posts/2026-10-19-123.md"},
		Terms:         []string{"Best Budget Mechanical Keyboard", strings.Repeat("Long ", 20)},
	}

	var buf bytes.Buffer
	PrintReport(&buf, r)
	out := buf.String()
	for _, want := range []string{"run-1", "1.5s", "_posts/2026-10-19-123.md", "Best Budget Mechanical Keyboard", "...", "Skipped (bad id)  : 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}

	buf.Reset()
	PrintReport(&buf, &models.RunReport{RunID: "run-2"})
	if !strings.Contains(buf.String(), "No posts created") {
		t.Error("empty report should say no posts were created")
	}
}
