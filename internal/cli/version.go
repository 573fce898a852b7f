package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/distantorigin/vpklink/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vpklink version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		v := version.Current()
		fmt.Printf("vpklink %s\n", v)
		if v.Date != "" {
			fmt.Printf("built %s\n", v.Date)
		}
	},
}
