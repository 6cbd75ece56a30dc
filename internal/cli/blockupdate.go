package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkwan/memtier/internal/manager"
	"github.com/mkwan/memtier/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "block-update [content]",
		Short: "Update a core memory block",
		Long:  "Update a core memory block at the current scope. Content can be a positional arg or piped via stdin.",
		Run:   runBlockUpdate,
	}

	cmd.Flags().StringP("label", "l", "", "Block label (required)")
	cmd.Flags().StringP("op", "o", "replace", "Operation: replace, append, search_replace")
	cmd.Flags().String("find", "", "Text to find (search_replace)")
	cmd.Flags().String("replace", "", "Replacement text (search_replace)")

	cmd.MarkFlagRequired("label")

	RootCmd.AddCommand(cmd)
}

func runBlockUpdate(cmd *cobra.Command, args []string) {
	label, _ := cmd.Flags().GetString("label")
	op, _ := cmd.Flags().GetString("op")
	find, _ := cmd.Flags().GetString("find")
	replace, _ := cmd.Flags().GetString("replace")

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
			content = strings.TrimSpace(string(b))
		}
	}

	m, err := openManager()
	if err != nil {
		exitErr("open manager", err)
	}
	defer m.Close()

	err = m.UpdateMemoryBlock(cmd.Context(), currentScope(), manager.BlockUpdate{
		Label:   label,
		Op:      manager.BlockOp(op),
		Content: content,
		Find:    find,
		Replace: replace,
	})
	if errors.Is(err, store.ErrContentTooLong) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	} else if err != nil {
		exitErr("block-update", err)
	}

	fmt.Printf("block %q updated\n", label)
}
