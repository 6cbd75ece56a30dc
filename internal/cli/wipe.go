package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all archival memories for the current user",
		Run:   runWipe,
	}

	cmd.Flags().Bool("yes", false, "Confirm deletion")

	RootCmd.AddCommand(cmd)
}

func runWipe(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		exitErr("wipe", fmt.Errorf("refusing to delete without --yes"))
	}

	m, err := openManager()
	if err != nil {
		exitErr("open manager", err)
	}
	defer m.Close()

	n, err := m.DeleteAllForUser(cmd.Context(), userFlag)
	if err != nil {
		exitErr("wipe", err)
	}

	fmt.Printf("deleted %d memories\n", n)
}
