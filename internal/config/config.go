// Package config holds linker configuration. The CLI loads it through
// viper; library consumers can fill the struct directly. Core packages
// never read configuration themselves, they receive plain values.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config describes the host layout, the remote sources, and the tuning
// knobs for retries and the change watcher.
type Config struct {
	// Host layout. All file paths are relative to HostRoot.
	HostRoot       string `mapstructure:"host_root"`
	SignatureFile  string `mapstructure:"signature_file"`
	GameInfoFile   string `mapstructure:"gameinfo_file"`
	VersionFile    string `mapstructure:"version_file"`
	PackageFile    string `mapstructure:"package_file"`
	AnchorToken    string `mapstructure:"anchor_token"`
	GameInfoMarker string `mapstructure:"gameinfo_marker"`
	HostExecutable string `mapstructure:"host_executable"`

	// Remote sources. Mirror lists are ordered fastest-first with the
	// origin last.
	ReleasesURL     string   `mapstructure:"releases_url"`
	SelfUpdateURL   string   `mapstructure:"selfupdate_url"`
	AssetSuffix     string   `mapstructure:"asset_suffix"`
	HashMirrors     []string `mapstructure:"hash_mirrors"`
	GameInfoMirrors []string `mapstructure:"gameinfo_mirrors"`

	// Local state files, relative to HostRoot unless absolute.
	HashRecordFile string `mapstructure:"hash_record_file"`
	BaselineFile   string `mapstructure:"baseline_file"`

	// Tuning.
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`

	// Logging.
	LogLevel string `mapstructure:"log_level"`
}

// Default returns the stock configuration. HostRoot is intentionally
// empty; an unconfigured host is a valid state the status pipeline
// reports as not-checked.
func Default() *Config {
	return &Config{
		SignatureFile:  "signatures.txt",
		GameInfoFile:   "gameinfo.txt",
		VersionFile:    "steam.inf",
		PackageFile:    "vpklink/pak01_dir.vpk",
		AnchorToken:    "DIGEST:",
		GameInfoMarker: "vpklink",
		HostExecutable: "csgo.exe",

		ReleasesURL:   "https://api.github.com/repos/distantorigin/vpklink-content/releases/latest",
		SelfUpdateURL: "https://api.github.com/repos/distantorigin/vpklink/releases/latest",
		AssetSuffix:   ".vpk.zip",
		HashMirrors: []string{
			"https://cdn.vpklink.net/pack.sha1",
			"https://distantorigin.github.io/vpklink-content/pack.sha1",
			"https://raw.githubusercontent.com/distantorigin/vpklink-content/main/pack.sha1",
		},
		GameInfoMirrors: []string{
			"https://cdn.vpklink.net/gameinfo.txt",
			"https://distantorigin.github.io/vpklink-content/gameinfo.txt",
			"https://raw.githubusercontent.com/distantorigin/vpklink-content/main/gameinfo.txt",
		},

		HashRecordFile: ".vpklink-hash",
		BaselineFile:   ".vpklink-baseline.json",

		RetryAttempts:  3,
		RetryDelay:     2 * time.Second,
		DebounceWindow: 500 * time.Millisecond,
		PollInterval:   30 * time.Second,

		LogLevel: "info",
	}
}

// Load reads configuration from an optional file and VPKLINK_*
// environment variables, layered over the defaults. Each call uses its
// own viper instance so there is no hidden process-wide state.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("vpklink")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix("VPKLINK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Validate checks the parts of the configuration that have no sane
// fallback.
func (c *Config) Validate() error {
	if c.AnchorToken == "" {
		return fmt.Errorf("anchor_token must not be empty")
	}
	if c.GameInfoMarker == "" {
		return fmt.Errorf("gameinfo_marker must not be empty")
	}
	if len(c.HashMirrors) == 0 {
		return fmt.Errorf("hash_mirrors must not be empty")
	}
	if len(c.GameInfoMirrors) == 0 {
		return fmt.Errorf("gameinfo_mirrors must not be empty")
	}
	return nil
}

// HashRecordPath resolves the local hash record location.
func (c *Config) HashRecordPath() string {
	return c.resolve(c.HashRecordFile)
}

// BaselinePath resolves the persisted baseline fingerprint location.
func (c *Config) BaselinePath() string {
	return c.resolve(c.BaselineFile)
}

// WatchedPaths returns the fixed set of host files the change watcher
// monitors.
func (c *Config) WatchedPaths() []string {
	return []string{
		filepath.Join(c.HostRoot, c.PackageFile),
		filepath.Join(c.HostRoot, c.GameInfoFile),
		filepath.Join(c.HostRoot, c.SignatureFile),
		filepath.Join(c.HostRoot, c.VersionFile),
	}
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.HostRoot, path)
}
