package summarizer

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// head returns the first n runes of s, or all of s when it is shorter.
func head(s string, n int) string {
	i := 0
	for k := 0; k < n && i < len(s); k++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}

// tail returns the last n runes of s, or all of s when it is shorter.
func tail(s string, n int) string {
	i := len(s)
	for k := 0; k < n && i > 0; k++ {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}

// Windows builds the per-page context for every page of a multi-page document:
// the page text with the tail of the previous page before it and the head of the
// next page after it, each at most overlap characters long.
func Windows(pages []string, overlap int) []string {
	n := len(pages)
	out := make([]string, n)
	for i := range pages {
		var sb strings.Builder
		if i > 0 {
			sb.WriteString(tail(pages[i-1], overlap))
		}
		sb.WriteString(pages[i])
		if i < n-1 {
			sb.WriteString(head(pages[i+1], overlap))
		}
		out[i] = sb.String()
	}
	return out
}

// PageBudget is the per-page token allowance: an even share of maxFinal across
// pages minus threshold, never lower than floor.
func PageBudget(maxFinal, pages, threshold, floor int) int {
	if floor < 1 {
		floor = 1
	}
	if pages <= 0 {
		return floor
	}
	b := maxFinal/pages - threshold
	if b < floor {
		return floor
	}
	return b
}

// PagePrompt fills every {} placeholder of the role template with the budget.
func PagePrompt(template string, budget int) string {
	return strings.ReplaceAll(template, "{}", strconv.Itoa(budget))
}
