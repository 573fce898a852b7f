// Package cli implements the vpklink command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/distantorigin/vpklink"
	"github.com/distantorigin/vpklink/internal/config"
)

var (
	cfgFile  string
	hostRoot string
	verbose  bool
	cfg      *config.Config
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vpklink",
	Short: "Link a VPK content package into a host game",
	Long: `vpklink downloads a content package with integrity verification and
links it into the host game by patching the game's two control files.
The patch is reversible and safe to re-run; the watch command keeps the
link healthy while the host updates itself underneath it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default vpklink.yaml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&hostRoot, "host-root", "", "host game root directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(selfupdateCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		cfg = config.Default()
	}
	if hostRoot != "" {
		cfg.HostRoot = hostRoot
	}

	logger = newLogger(cfg.LogLevel)
}

// newLogger builds the CLI logger. --verbose wins over the configured
// level.
func newLogger(level string) *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else if parsed, err := zapcore.ParseLevel(level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(parsed)
	}

	l, err := zc.Build()
	if err != nil {
		l, _ = zap.NewProduction()
	}
	return l
}

func newLinker() (*vpklink.Linker, error) {
	linker, err := vpklink.New(vpklink.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return linker, nil
}
