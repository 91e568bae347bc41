package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"affiliate-poster/config"
	"affiliate-poster/models"
)

const (
	dateLayout   = "2006-01-02"
	maxSlugRunes = 50
	disclosure   = "> **Disclaimer:** This post contains affiliate links. If you make a purchase through these links, we may earn a commission at no extra cost to you."
)

// Renderer turns a product and its review text into a Markdown post.
type Renderer struct {
	layout        string
	filenameStyle string
}

// NewRenderer creates a Renderer configured from cfg.
func NewRenderer(cfg *config.Config) *Renderer {
	return &Renderer{layout: cfg.PostLayout, filenameStyle: cfg.FilenameStyle}
}

// Render assembles the post for p dated date. An empty review selects the
// fallback content.
func (r *Renderer) Render(p models.Product, review string, date time.Time) *models.Post {
	title := normaliseText(p.Title)
	fallback := strings.TrimSpace(review) == ""
	if fallback {
		review = FallbackContent(p)
	}

	var b strings.Builder
	b.WriteString("---\n")
	if r.layout != "" {
		fmt.Fprintf(&b, "layout: %s\n", r.layout)
	}
	fmt.Fprintf(&b, "title: %s\n", quoteScalar(title))
	fmt.Fprintf(&b, "date: %s\n", date.Format(dateLayout))
	b.WriteString("---\n\n")

	if img := NormalizeImageURL(p.ImageURL); img != "" {
		fmt.Fprintf(&b, "![%s](%s)\n\n", altText(title), img)
	}

	b.WriteString(disclosure)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(review))
	b.WriteString("\n\n<br>\n\n")
	b.WriteString("### 👇 Check the Best Price Here\n")
	fmt.Fprintf(&b, "**[>> Buy Now on AliExpress](%s)**\n", p.PromotionLink)

	return &models.Post{
		ProductID: p.ID,
		Title:     title,
		Date:      date,
		FileName:  r.FileName(p, date),
		Body:      b.String(),
		Fallback:  fallback,
	}
}

// FileName returns <date>-<product id>.md, or <date>-<title slug>.md when
// the renderer uses slug names. A title that slugs to nothing falls back to
// the id.
func (r *Renderer) FileName(p models.Product, date time.Time) string {
	name := p.ID.String()
	if r.filenameStyle == "slug" {
		if slug := Slugify(p.Title); slug != "" {
			name = slug
		}
	}
	return date.Format(dateLayout) + "-" + name + ".md"
}

// FallbackContent is the deterministic review used when generation fails.
// Title and price appear verbatim.
func FallbackContent(p models.Product) string {
	rating := strings.TrimSpace(p.Rating)
	status := "Popular pick"
	if rating == "" {
		rating = "Not yet rated"
		status = "New arrival"
	}
	currency := strings.TrimSpace(p.Currency)
	if currency == "" {
		currency = "USD"
	}

	return fmt.Sprintf(`## %[1]s

Looking for a great deal? **%[1]s** is currently available on AliExpress for just **$%[2]s %[3]s**.

- **Price:** $%[2]s %[3]s
- **Rating:** %[4]s
- **Status:** %[5]s

Prices on AliExpress change often, so check the current offer before it is gone.`,
		p.Title, p.SalePrice, currency, rating, status)
}

// NormalizeImageURL makes protocol-relative URLs absolute and strips the
// query string and fragment.
func NormalizeImageURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return u
}

// Slugify lowercases s, strips diacritics and joins ASCII letter/digit runs
// with hyphens, truncated to a bounded length.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	slug := b.String()
	if len(slug) > maxSlugRunes {
		slug = slug[:maxSlugRunes]
	}
	return strings.Trim(slug, "-")
}

// quoteScalar renders s as a double-quoted YAML scalar.
func quoteScalar(s string) string {
	out, err := yaml.Marshal(&yaml.Node{Kind: yaml.ScalarNode, Style: yaml.DoubleQuotedStyle, Value: s})
	if err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(string(out), "\n")
}

func altText(s string) string {
	return strings.NewReplacer("[", "(", "]", ")").Replace(s)
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
