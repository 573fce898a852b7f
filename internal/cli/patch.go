package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/distantorigin/vpklink/internal/process"
	"github.com/distantorigin/vpklink/internal/prompt"
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Link the installed package into the host's control files",
	Long: `Apply the two-control-file patch: append the package marker line to
the signature file and replace the game configuration with the patched
payload. Re-running on an already-patched host is safe and changes
nothing.`,
	Args: cobra.NoArgs,
	RunE: runPatch,
}

var (
	patchForce bool
	patchYes   bool
	patchWait  bool
)

func init() {
	patchCmd.Flags().BoolVar(&patchForce, "force", false, "re-apply even when markers are already in place")
	patchCmd.Flags().BoolVarP(&patchYes, "yes", "y", false, "skip the confirmation prompt")
	patchCmd.Flags().BoolVar(&patchWait, "wait", false, "wait for the host game to exit instead of refusing")
}

func runPatch(cmd *cobra.Command, args []string) error {
	linker, err := newLinker()
	if err != nil {
		return err
	}

	if !patchForce {
		patched, err := linker.IsPatched()
		if err == nil && patched {
			fmt.Println("Already patched.")
			return nil
		}
	}

	// The game rewrites its control files on exit, so a patch applied
	// underneath a running game would not survive.
	if process.IsRunningInDir(cfg.HostRoot, cfg.HostExecutable) {
		if !patchWait {
			return fmt.Errorf("%s is running; close it or pass --wait", cfg.HostExecutable)
		}
		fmt.Printf("Waiting for %s to exit...\n", cfg.HostExecutable)
		if !process.WaitForExit(cfg.HostExecutable, 10*time.Minute) {
			return fmt.Errorf("timed out waiting for %s to exit", cfg.HostExecutable)
		}
	}

	if !prompt.Confirm("Patch the host's control files?", prompt.Config{NonInteractive: patchYes}) {
		fmt.Println("Aborted.")
		return nil
	}

	result := linker.Patch(context.Background())
	if result.Err != nil {
		return fmt.Errorf("patch %s: %w", result.State, result.Err)
	}

	fmt.Println("Patch applied.")
	return nil
}
