package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkwan/memtier/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [message]",
		Short: "Extract and store memories from a message",
		Long:  "Run the extraction pipeline on a user message: extract facts, deduplicate against existing memories, store the novel ones.",
		Run:   runRemember,
	}

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}

	if strings.TrimSpace(content) == "" {
		exitErr("remember", fmt.Errorf("message is required (positional arg or stdin)"))
	}

	m, err := openManager()
	if err != nil {
		exitErr("open manager", err)
	}
	defer m.Close()

	report := m.ProcessMessageForMemories(cmd.Context(), model.Message{
		Role:    "user",
		Content: content,
	}, currentScope())

	fmt.Printf("created %d, updated %d\n", report.Created, report.Updated)
}
