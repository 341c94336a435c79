package media

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/microcosm-cc/bluemonday"
)

const maxExcerptLen = 300

var stripPolicy = bluemonday.StrictPolicy()

// Excerpt returns s as plain text cut to a caption friendly length. The
// result is not escaped.
func Excerpt(s string) string {
	s = html.UnescapeString(stripPolicy.Sanitize(html.UnescapeString(s)))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxExcerptLen {
		return s
	}

	runes := []rune(s)

	return strings.TrimSpace(string(runes[:maxExcerptLen])) + "…"
}

// ReadabilitySummarizer extracts the excerpt of a linked page.
type ReadabilitySummarizer struct {
	client    *retryablehttp.Client
	userAgent string
}

func NewReadabilitySummarizer(client *retryablehttp.Client, userAgent string) *ReadabilitySummarizer {
	return &ReadabilitySummarizer{client: client, userAgent: userAgent}
}

func (s *ReadabilitySummarizer) Summarize(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s from %s", resp.Status, pageURL)
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", fmt.Errorf("error parsing %s: %w", pageURL, err)
	}

	text := article.Excerpt
	if text == "" {
		text = article.TextContent
	}

	return Excerpt(text), nil
}
