package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mkwan/memtier/internal/model"
)

const extractionSystemPrompt = `You are a memory extraction system. Write concise notes, not essays.

Extract from the conversation turn:
- Personal info: name, location, profession, relationships
- Preferences: likes, dislikes, workflow habits
- Goals and projects: what they're working on, deadlines
- Technical context: stack, tools, skills
- Key decisions or outcomes

For each fact return:
- "content": one concise sentence stating the fact directly, no narration
- "category": one of personal, preference, goal, context, technical
- "importance": 0.0-1.0 (0.8+ critical, 0.5-0.8 useful, below 0.5 minor)
- "tags": 2-4 keywords

Rules:
- State facts directly: "Prefers X", not "User mentioned they prefer X"
- Skip greetings, ephemeral debugging, small talk
- Fewer high-quality facts beat many low-quality ones

Respond with valid JSON: {"facts": [...]}. Return {"facts": []} if nothing is worth remembering.`

// AnthropicConfig selects the extraction model at startup.
type AnthropicConfig struct {
	APIKey    string
	Model     string // default claude-3-5-haiku-latest
	MaxTokens int64  // default 1024
}

// AnthropicExtractor extracts facts with a Claude call that returns a
// JSON facts array.
type AnthropicExtractor struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicExtractor creates an LLM-backed extractor.
func NewAnthropicExtractor(cfg AnthropicConfig) *AnthropicExtractor {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &AnthropicExtractor{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
	}
}

func (e *AnthropicExtractor) Extract(ctx context.Context, text string) ([]model.ExtractedFact, error) {
	prompt := fmt.Sprintf("Extract memorable facts from this message. One concise sentence per fact.\n\n---\n%s\n---", text)

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: extractionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	var raw strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			raw.WriteString(block.Text)
		}
	}

	payload := stripToJSON(raw.String())
	if payload == "" {
		// The model declined to produce JSON; treat as no facts.
		return nil, nil
	}

	var parsed struct {
		Facts []model.ExtractedFact `json:"facts"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return parsed.Facts, nil
}

// stripToJSON peels markdown fences and surrounding prose off the
// model output, returning the outermost JSON object or "".
func stripToJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
