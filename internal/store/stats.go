package store

import (
	"context"
	"fmt"

	"github.com/mkwan/memtier/internal/model"
)

// Stats holds archival memory statistics for a scope.
type Stats struct {
	Total         int            `json:"total"`
	AvgImportance float64        `json:"avg_importance"`
	ByCategory    map[string]int `json:"by_category,omitempty"`
	ChatScoped    int            `json:"chat_scoped"`
	CoreBlocks    int            `json:"core_blocks"`
}

// Stats returns counts and importance aggregates for a user's archival
// memories, with a per-category distribution pulled from metadata.
func (s *SQLiteStore) Stats(ctx context.Context, scope model.Scope) (*Stats, error) {
	if scope.UserID == "" {
		return nil, fmt.Errorf("stats: user_id is required")
	}
	st := &Stats{ByCategory: map[string]int{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(importance), 0),
		        COALESCE(SUM(CASE WHEN chat_id != '' THEN 1 ELSE 0 END), 0)
		 FROM archival_memories WHERE user_id = ?`, scope.UserID).
		Scan(&st.Total, &st.AvgImportance, &st.ChatScoped)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM core_blocks WHERE user_id = ? OR user_id = ''`,
		scope.UserID).Scan(&st.CoreBlocks)

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(json_extract(metadata, '$.category'), ''), COUNT(*)
		 FROM archival_memories WHERE user_id = ?
		 GROUP BY 1 ORDER BY 2 DESC`, scope.UserID)
	if err != nil {
		return st, nil
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			continue
		}
		if category == "" {
			category = "uncategorized"
		}
		st.ByCategory[category] = count
	}
	return st, nil
}
