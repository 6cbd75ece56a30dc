package extract

import (
	"context"
	"strings"

	"github.com/mkwan/memtier/internal/model"
)

// HeuristicExtractor is the fallback when no extraction model is
// configured. It keeps at most one low-importance fact per message:
// declarative first-person statements long enough to carry signal.
// It never errors.
type HeuristicExtractor struct{}

var firstPersonMarkers = []string{"i ", "i'm ", "i am ", "my ", "we ", "our "}

func (HeuristicExtractor) Extract(ctx context.Context, text string) ([]model.ExtractedFact, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 20 || strings.HasSuffix(trimmed, "?") {
		return nil, nil
	}

	lower := " " + strings.ToLower(trimmed)
	declarative := false
	for _, marker := range firstPersonMarkers {
		if strings.Contains(lower, " "+marker) {
			declarative = true
			break
		}
	}
	if !declarative {
		return nil, nil
	}

	importance := 0.4
	return []model.ExtractedFact{{
		Content:    trimmed,
		Category:   "context",
		Importance: &importance,
	}}, nil
}
