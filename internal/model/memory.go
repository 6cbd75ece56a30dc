// Package model defines the core memory data types.
package model

import "time"

// Core memory block labels with defined semantics. Custom labels are
// allowed but these four are always resolved for context injection.
const (
	LabelPersona = "persona"
	LabelUser    = "user"
	LabelFacts   = "facts"
	LabelContext = "context"
)

// DefaultLabels are the block labels resolved by GetBlocks when no
// explicit label set is given.
var DefaultLabels = []string{LabelPersona, LabelUser, LabelFacts, LabelContext}

// DefaultMaxBlockSize is the soft content bound for a core memory block,
// in characters. Exceeding it is a warning, not a write failure.
const DefaultMaxBlockSize = 2048

// Scope identifies the (chat, user) pair a memory is visible in.
// Both empty means global, user only means user-scoped, both set means
// chat-scoped.
type Scope struct {
	ChatID string `json:"chat_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// Level returns the scope level: "chat", "user" or "global".
func (s Scope) Level() string {
	switch {
	case s.ChatID != "" && s.UserID != "":
		return "chat"
	case s.UserID != "":
		return "user"
	default:
		return "global"
	}
}

// CoreMemoryBlock is one always-visible working memory block.
// At most one block exists per (label, chat_id, user_id) triple.
type CoreMemoryBlock struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	ChatID    string    `json:"chat_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArchivalMemory is one discrete fact in unbounded long-term storage.
type ArchivalMemory struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ChatID      string     `json:"chat_id,omitempty"`
	Content     string     `json:"content"`
	Embedding   []float32  `json:"-"`
	Metadata    Metadata   `json:"metadata,omitempty"`
	Importance  float64    `json:"importance"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AccessedAt  *time.Time `json:"accessed_at,omitempty"`
	AccessCount int        `json:"access_count"`
}

// Category returns the metadata category, or "" if unset.
func (m *ArchivalMemory) Category() string {
	if v, ok := m.Metadata["category"]; ok {
		return v.Str
	}
	return ""
}

// ScoredRecord is an archival memory with search scores attached.
// Semantic and Lexical hold the per-leg scores; Score is the final
// ranking score (a single leg's score for plain search, the combined
// score after hybrid ranking).
type ScoredRecord struct {
	ArchivalMemory
	Score    float64 `json:"score"`
	Semantic float64 `json:"semantic,omitempty"`
	Lexical  float64 `json:"lexical,omitempty"`
}

// Message is one conversational message fed to the extraction pipeline.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExtractedFact is one candidate fact returned by an extractor.
// Importance is a pointer so the pipeline can distinguish "omitted"
// (defaulted to 0.5) from an explicit 0.
type ExtractedFact struct {
	Content    string   `json:"content"`
	Category   string   `json:"category,omitempty"`
	Importance *float64 `json:"importance,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// ExtractionReport summarizes one ProcessMessage run.
// Conflicts is reserved for contradiction detection and is always 0.
type ExtractionReport struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Conflicts int `json:"conflicts"`
}

// ClampImportance clamps v to [0, 1].
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
