package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/distantorigin/vpklink"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the host install and report status changes",
	Long: `Watch the host's control files and re-evaluate the link status
whenever a change settles. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	linker, err := newLinker()
	if err != nil {
		return err
	}

	report := func(r vpklink.StatusResult) {
		fmt.Printf("[%s] %s\n", r.Code, r.Description)
	}

	// Report once up front so the watcher starts from a known state.
	initial, err := linker.Status(context.Background())
	if err != nil {
		return fmt.Errorf("initial status evaluation failed: %w", err)
	}
	report(initial)

	if err := linker.StartWatching(report); err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	defer linker.StopWatching()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nStopping.")
	return nil
}
