package service

import (
	"fmt"
	"strings"

	"ragchat/internal/domain"
)

// BuildPrompt assembles the chat prompt: system role, the last pairs turns of
// history, the retrieved chunks and the new question.
func BuildPrompt(role string, history []domain.Turn, pairs int, results []domain.SearchResult, message string) string {
	if pairs < 0 {
		pairs = 0
	}
	if len(history) > pairs {
		history = history[len(history)-pairs:]
	}
	lines := make([]string, len(history))
	for i, t := range history {
		lines[i] = fmt.Sprintf("%s: %s", t.Question, t.Answer)
	}
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Chunk.Text + "\n\n"
	}

	var sb strings.Builder
	sb.WriteString(role)
	sb.WriteString("\nChat history:\n")
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n\nRetrieved content:\n# Retrieved content:\n\n")
	sb.WriteString(strings.Join(contents, "\n"))
	sb.WriteString("\n\n# User new question:\n")
	sb.WriteString(message)
	return sb.String()
}
