// Package references renders retrieved chunks as a readable markdown list of
// sources, cleaning up the text artifacts PDF extraction tends to leave behind.
package references

import (
	"fmt"
	"html"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"ragchat/internal/domain"
)

var (
	escapedNewlineRe = regexp.MustCompile(`\\n`)
	specialTokensRe  = regexp.MustCompile(`\s*<EOS>\s*<pad>\s*`)
	whitespaceRe     = regexp.MustCompile(`\s+`)

	// UTF-8 sequences that were decoded as Latin-1 somewhere upstream.
	mojibake = strings.NewReplacer(
		"ï¬\u0081", "fi",
		"ï¬\u0082", "fl",
		"â\u0080\u0093", "-",
		"â\u0080\u0094", "-",
		"â\u0080\u0099", "'",
		"â\u0080\u009c", `"`,
		"â\u0080\u009d", `"`,
		"â\u0088\u0088", "∈",
		"Ã\u0097", "×",
		"Â·", "·",
	)
)

// Clean normalizes extracted text for display.
func Clean(text string) string {
	text = escapedNewlineRe.ReplaceAllString(text, "\n")
	text = specialTokensRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(strings.TrimSpace(text))
	return mojibake.Replace(text)
}

// Format renders results as numbered markdown sections with source, page and a
// link to the document on serverURL. An empty serverURL omits the link.
func Format(results []domain.SearchResult, serverURL string) string {
	var sb strings.Builder
	for i, r := range results {
		base := filepath.Base(r.Chunk.Source)
		fmt.Fprintf(&sb, "# Retrieved content %d:\n%s\n\n", i+1, Clean(r.Chunk.Text))
		fmt.Fprintf(&sb, "Source: %s | Page number: %d", base, r.Chunk.Page)
		if serverURL != "" {
			fmt.Fprintf(&sb, " | [View PDF](%s/docs/%s)", strings.TrimRight(serverURL, "/"), url.PathEscape(base))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}
