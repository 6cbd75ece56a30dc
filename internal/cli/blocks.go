package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Show resolved core memory blocks",
		Long:  "Show every core memory block for the current scope, resolved through the chat > user > global precedence chain.",
		Run:   runBlocks,
	}

	cmd.Flags().Bool("render", false, "Render as prompt-injectable text instead of JSON")

	RootCmd.AddCommand(cmd)
}

func runBlocks(cmd *cobra.Command, args []string) {
	render, _ := cmd.Flags().GetBool("render")

	m, err := openManager()
	if err != nil {
		exitErr("open manager", err)
	}
	defer m.Close()

	if render {
		out, err := m.FormatCoreMemoryForContext(cmd.Context(), currentScope())
		if err != nil {
			exitErr("blocks", err)
		}
		fmt.Println(out)
		return
	}

	blocks, err := m.GetCoreMemory(cmd.Context(), currentScope())
	if err != nil {
		exitErr("blocks", err)
	}

	b, _ := json.MarshalIndent(blocks, "", "  ")
	fmt.Println(string(b))
}
