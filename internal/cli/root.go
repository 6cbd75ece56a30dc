// Package cli implements the memtier CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mkwan/memtier/internal/embedding"
	"github.com/mkwan/memtier/internal/extract"
	"github.com/mkwan/memtier/internal/manager"
	"github.com/mkwan/memtier/internal/model"
	"github.com/mkwan/memtier/internal/store"
)

var (
	dbPath   string
	userFlag string
	chatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memtier",
	Short: "Dual-tier memory for AI agents",
	Long:  "Bounded core memory blocks plus searchable archival memory. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MEMTIER_DB or ~/.memtier/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "default", "User id for scoping")
	RootCmd.PersistentFlags().StringVarP(&chatFlag, "chat", "c", "", "Chat id for scoping (empty for cross-chat)")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("MEMTIER_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memtier", "memory.db")
}

func currentScope() model.Scope {
	return model.Scope{ChatID: chatFlag, UserID: userFlag}
}

// openManager wires a Manager from environment config. The embedder
// comes from MEMTIER_EMBED_* variables and the extractor from
// ANTHROPIC_API_KEY; both degrade gracefully when unset. Providers sit
// behind a cache so repeated queries and candidate facts embed once.
func openManager() (*manager.Manager, error) {
	var embedder embedding.Embedder
	if inner := embedding.New(embedding.ConfigFromEnv()); inner != nil {
		cached, err := embedding.NewCachingEmbedder(inner, 0)
		if err != nil {
			return nil, err
		}
		embedder = cached
	}

	dim := 768
	if embedder != nil {
		dim = embedder.Dims()
	}

	s, err := store.New(store.Config{
		Path: getDBPath(),
		Dim:  dim,
	})
	if err != nil {
		return nil, err
	}

	var extractor extract.Extractor
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		extractor = extract.NewAnthropicExtractor(extract.AnthropicConfig{APIKey: key})
	}

	return manager.New(manager.Config{
		Store:     s,
		Embedder:  embedder,
		Extractor: extractor,
	}), nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
