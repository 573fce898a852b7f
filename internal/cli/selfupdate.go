package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/distantorigin/vpklink/internal/acquire"
	"github.com/distantorigin/vpklink/internal/selfupdate"
	"github.com/distantorigin/vpklink/internal/version"
)

var selfupdateCmd = &cobra.Command{
	Use:   "selfupdate",
	Short: "Update vpklink itself to the latest release",
	Args:  cobra.NoArgs,
	RunE:  runSelfupdate,
}

func runSelfupdate(cmd *cobra.Command, args []string) error {
	acquirer := acquire.New(nil, acquire.RetryPolicy{
		Attempts: cfg.RetryAttempts,
		Delay:    cfg.RetryDelay,
	}, logger)

	replaced, err := selfupdate.Check(context.Background(), acquirer, selfupdate.Config{
		ReleasesURL:    cfg.SelfUpdateURL,
		CurrentVersion: version.Current().String(),
	}, logger)
	if err != nil {
		return fmt.Errorf("self-update failed: %w", err)
	}

	if replaced {
		fmt.Println("vpklink updated; restart to use the new version.")
	} else {
		fmt.Println("vpklink is up to date.")
	}
	return nil
}
