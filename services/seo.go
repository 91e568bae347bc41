package services

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

// postFileRegexp matches the <date>-<name>.md post naming convention.
var postFileRegexp = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})-(.+)\.md$`)

// PostEntry is a post reconstructed from its file name.
type PostEntry struct {
	Date time.Time
	Name string
}

// Path returns the Jekyll-style permalink /YYYY/MM/DD/name.html.
func (e PostEntry) Path() string {
	return fmt.Sprintf("/%s/%s.html", e.Date.Format("2006/01/02"), e.Name)
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// ScanPosts lists posts in dir, newest first. Files that do not follow the
// naming convention are ignored. A missing directory yields no posts.
func ScanPosts(dir string) ([]PostEntry, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("seo: read %q: %w", dir, err)
	}

	var posts []PostEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := postFileRegexp.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		date, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
		if err != nil {
			continue
		}
		posts = append(posts, PostEntry{Date: date, Name: m[4]})
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].Date.Equal(posts[j].Date) {
			return posts[i].Date.After(posts[j].Date)
		}
		return posts[i].Name < posts[j].Name
	})
	return posts, nil
}

// BuildSitemap renders sitemap.xml for siteURL: the home page first, then
// every post.
func BuildSitemap(siteURL string, posts []PostEntry) ([]byte, error) {
	base := strings.TrimRight(siteURL, "/")
	set := urlSet{XMLNS: sitemapNS}

	home := sitemapURL{Loc: base + "/"}
	if len(posts) > 0 {
		home.LastMod = posts[0].Date.Format("2006-01-02")
	}
	set.URLs = append(set.URLs, home)

	for _, p := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     base + p.Path(),
			LastMod: p.Date.Format("2006-01-02"),
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("seo: marshal sitemap: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// BuildRobots renders robots.txt pointing at the sitemap.
func BuildRobots(siteURL string) string {
	base := strings.TrimRight(siteURL, "/")
	return "User-agent: *\nAllow: /\n\nSitemap: " + base + "/sitemap.xml\n"
}

// WriteSEO regenerates sitemap.xml and robots.txt in outDir from the posts in
// postsDir and returns the number of posts listed.
func WriteSEO(siteURL, postsDir, outDir string) (int, error) {
	if strings.TrimSpace(siteURL) == "" {
		return 0, fmt.Errorf("seo: SITE_URL is required")
	}

	posts, err := ScanPosts(postsDir)
	if err != nil {
		return 0, err
	}

	sitemap, err := BuildSitemap(siteURL, posts)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("seo: create dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "sitemap.xml"), sitemap, 0644); err != nil {
		return 0, fmt.Errorf("seo: write sitemap: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "robots.txt"), []byte(BuildRobots(siteURL)), 0644); err != nil {
		return 0, fmt.Errorf("seo: write robots: %w", err)
	}
	return len(posts), nil
}
