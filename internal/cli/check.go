package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a newer content package is published",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	linker, err := newLinker()
	if err != nil {
		return err
	}

	hasNewer, hasLocal, err := linker.CheckForUpdate(context.Background())
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}

	switch {
	case !hasLocal:
		fmt.Println("No local install found; run 'vpklink install'.")
	case hasNewer:
		fmt.Println("A newer package is available; run 'vpklink install'.")
	default:
		fmt.Println("Package is up to date.")
	}
	return nil
}
