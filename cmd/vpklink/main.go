package main

import (
	"fmt"
	"os"

	"github.com/distantorigin/vpklink/internal/cli"
	"github.com/distantorigin/vpklink/internal/selfupdate"
)

func main() {
	selfupdate.CleanupOld()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
