package manager

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mkwan/memtier/internal/model"
)

const noMemoriesFound = "No relevant memories found."

// formatCoreBlocks renders resolved core blocks in the canonical label
// order. Empty blocks are skipped; all-empty yields "".
func formatCoreBlocks(blocks map[string]string) string {
	var b strings.Builder
	for _, label := range model.DefaultLabels {
		content := strings.TrimSpace(blocks[label])
		if content == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("### Core Memory\n")
		}
		b.WriteString("\n**")
		b.WriteString(titleLabel(label))
		b.WriteString("**:\n")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

// formatRetrieved renders ranked archival results for prompt injection.
// High-importance memories get a star marker, categorized ones a
// bracketed prefix.
func formatRetrieved(results []model.ScoredRecord) string {
	if len(results) == 0 {
		return noMemoriesFound
	}

	var b strings.Builder
	b.WriteString("### Relevant Memories\n")
	for _, rec := range results {
		b.WriteString("- ")
		if rec.Importance > 0.7 {
			b.WriteString("★ ")
		}
		if cat := rec.Category(); cat != "" {
			b.WriteString("[" + cat + "] ")
		}
		b.WriteString(rec.Content)
		fmt.Fprintf(&b, " (relevance: %.2f)\n", rec.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateOldest trims block content down to max characters by
// dropping the oldest lines from the front. When a single line exceeds
// max, the tail runes are kept as-is; the cut never splits a rune.
func truncateOldest(content string, max int) string {
	if max <= 0 || utf8.RuneCountInString(content) <= max {
		return content
	}
	runes := []rune(content)
	trimmed := string(runes[len(runes)-max:])
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 && idx+1 < len(trimmed) {
		trimmed = trimmed[idx+1:]
	}
	return trimmed
}

func titleLabel(label string) string {
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
