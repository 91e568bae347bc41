package gemini

import (
	"errors"
	"fmt"
	"strings"

	"affiliate-poster/models"
)

var (
	// ErrNoContent is returned when every model candidate failed or answered
	// without text. Callers substitute fallback content.
	ErrNoContent = errors.New("gemini: no content generated")
	// ErrQuotaExceeded marks a rate-limit or quota answer; it is retried
	// with backoff on the same candidate.
	ErrQuotaExceeded = errors.New("gemini: quota exceeded")
)

// Candidate is one model/API-version pair to try.
type Candidate struct {
	Version string
	Model   string
}

func (c Candidate) String() string { return c.Version + "/" + c.Model }

// Candidates expands models × versions in configured order.
func Candidates(models, versions []string) []Candidate {
	out := make([]Candidate, 0, len(models)*len(versions))
	for _, m := range models {
		for _, v := range versions {
			out = append(out, Candidate{Version: v, Model: strings.TrimPrefix(m, "models/")})
		}
	}
	return out
}

// BuildPrompt renders the review request for p.
func BuildPrompt(p models.Product) string {
	return fmt.Sprintf(`You are a professional tech and lifestyle gadget reviewer. Write a compelling blog post in English based on the AliExpress product details below.

[Product Info]
- Product Name: %s
- Price: $%s %s
- Rating: %s
- Image URL: %s

[Requirements]
1. Title: Catchy and SEO-friendly (e.g., "Why You Need This...", "Best Budget...").
2. Body: Explain the key features, pros, and why it's a good deal. Use a friendly, enthusiastic tone.
3. Structure: Use Markdown (Headings, Bullet points).
4. Language: English only.
5. Conclusion: A strong call to action to check the price.
`, p.Title, p.SalePrice, p.Currency, p.Rating, p.ImageURL)
}

// isQuotaSignal reports whether a failed response means rate limiting.
func isQuotaSignal(status int, body string) bool {
	if status == 429 {
		return true
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "resource_exhausted")
}
