package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the current link status",
	Long: `Evaluate the host installation and report one of the terminal
statuses: not checked, not installed, disabled, needs update, ready, or
error, along with the recommended next action.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	linker, err := newLinker()
	if err != nil {
		return err
	}

	result, err := linker.Status(context.Background())
	if err != nil {
		return fmt.Errorf("status evaluation failed: %w", err)
	}

	fmt.Printf("Status: %s\n", result.Code)
	fmt.Printf("Detail: %s\n", result.Description)
	fmt.Printf("Action: %s\n", result.Action)
	return nil
}
