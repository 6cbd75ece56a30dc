// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mkwan/memtier/internal/embedding/mock"
	"github.com/mkwan/memtier/internal/vector"
)

// Embedder generates embedding vectors from text. Failures are
// propagated as errors, never silently zero-filled.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dims() int
}

// Config selects an embedding provider at startup. The provider and
// dimensionality are fixed per deployment; swapping providers never
// touches manager logic.
type Config struct {
	Provider string // "ollama" | "openai" | "mock" | "" (disabled)
	Model    string
	BaseURL  string
	APIKey   string
	Dims     int
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

// --- Ollama provider ---

// OllamaEmbedder uses a local Ollama instance for embeddings.
type OllamaEmbedder struct {
	baseURL string
	model   string
	dims    int
	client  *http.Client
}

// NewOllamaEmbedder creates an embedder against Ollama's API.
// Known models: nomic-embed-text (768 dims), all-minilm (384 dims).
func NewOllamaEmbedder(cfg Config) *OllamaEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	dims := cfg.Dims
	if dims == 0 {
		dims = 768
		if cfg.Model == "all-minilm" {
			dims = 384
		}
	}
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   cfg.Model,
		dims:    dims,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{e.model, text}
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := postJSON(ctx, e.client, e.baseURL+"/api/embeddings", "", &req, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if err := vector.Validate(resp.Embedding); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return resp.Embedding, nil
}

func (e *OllamaEmbedder) Dims() int { return e.dims }

// --- OpenAI-compatible provider ---

// OpenAIEmbedder uses any OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
}

// NewOpenAIEmbedder creates an embedder against an OpenAI-compatible API.
func NewOpenAIEmbedder(cfg Config) *OpenAIEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	dims := cfg.Dims
	if dims == 0 {
		dims = 1536
	}
	return &OpenAIEmbedder{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := struct {
		Input string `json:"input"`
		Model string `json:"model"`
	}{text, e.model}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := postJSON(ctx, e.client, e.baseURL+"/embeddings", e.apiKey, &req, &resp); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: no embedding returned")
	}
	if err := vector.Validate(resp.Data[0].Embedding); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dims() int { return e.dims }

// --- Factory ---

// ConfigFromEnv reads the embedding provider configuration:
// MEMTIER_EMBED_PROVIDER: "ollama" | "openai" | "mock" | "" (disabled)
// MEMTIER_EMBED_MODEL, MEMTIER_EMBED_URL, MEMTIER_EMBED_DIMS
// OPENAI_API_KEY: for the openai provider
func ConfigFromEnv() Config {
	dims, _ := strconv.Atoi(os.Getenv("MEMTIER_EMBED_DIMS"))
	return Config{
		Provider: os.Getenv("MEMTIER_EMBED_PROVIDER"),
		Model:    os.Getenv("MEMTIER_EMBED_MODEL"),
		BaseURL:  os.Getenv("MEMTIER_EMBED_URL"),
		APIKey:   os.Getenv("OPENAI_API_KEY"),
		Dims:     dims,
	}
}

// New creates an embedder from config. A nil return means embeddings
// are disabled; callers that need them must treat that as a
// configuration error.
func New(cfg Config) Embedder {
	switch cfg.Provider {
	case "ollama":
		if cfg.Model == "" {
			cfg.Model = "nomic-embed-text"
		}
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "mock":
		return mock.New(cfg.Dims)
	default:
		return nil
	}
}
