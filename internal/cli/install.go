package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download, verify, and install the content package",
	Long: `Download the content package from the fastest available mirror,
verify its published hash, and commit it into the host install. The
download is staged and verified before any host file is touched.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

var installThenPatch bool

func init() {
	installCmd.Flags().BoolVar(&installThenPatch, "patch", false, "apply the control-file patch after installing")
}

func runInstall(cmd *cobra.Command, args []string) error {
	linker, err := newLinker()
	if err != nil {
		return err
	}
	ctx := context.Background()

	result, err := linker.Install(ctx, printProgress)
	if err != nil {
		return fmt.Errorf("install failed: %w", err)
	}
	fmt.Println()

	if result.AlreadyUpToDate {
		fmt.Println("Package already up to date.")
	} else {
		fmt.Println("Package installed.")
	}

	if installThenPatch {
		return runPatch(cmd, nil)
	}
	return nil
}

// printProgress redraws a single progress line in place.
func printProgress(bytesComplete, totalBytes int64, bytesPerSecond float64) {
	if totalBytes > 0 {
		fmt.Printf("\rDownloading... %.1f%% (%.1f MB/s)",
			float64(bytesComplete)/float64(totalBytes)*100,
			bytesPerSecond/1024/1024)
		return
	}
	fmt.Printf("\rDownloading... %d bytes (%.1f MB/s)",
		bytesComplete, bytesPerSecond/1024/1024)
}
