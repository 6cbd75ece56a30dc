package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "forget [id]",
		Short: "Delete one archival memory by id",
		Args:  cobra.ExactArgs(1),
		Run:   runForget,
	}

	RootCmd.AddCommand(cmd)
}

func runForget(cmd *cobra.Command, args []string) {
	m, err := openManager()
	if err != nil {
		exitErr("open manager", err)
	}
	defer m.Close()

	if err := m.DeleteMemory(cmd.Context(), args[0]); err != nil {
		exitErr("forget", err)
	}

	fmt.Printf("deleted %s\n", args[0])
}
