// Package fingerprint snapshots the host's version identity so the
// linker can tell when the host changed underneath an installed patch.
// A fingerprint is taken at patch time (the baseline, persisted to a
// cache file) and on every evaluation (the current), and drift between
// the two forces a re-patch.
package fingerprint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/distantorigin/vpklink/internal/record"
)

// Version file keys tried in order for the display string and the
// numeric build id.
var (
	versionKeys = []string{"PatchVersion", "Version"}
	buildKeys   = []string{"ClientVersion", "Build"}
)

// Fingerprint is a composite snapshot of the host's identity. All four
// fields are read within one evaluation pass so old and newly-changed
// files are never mixed.
type Fingerprint struct {
	HostVersion  string `json:"host_version"`
	BuildNumber  int    `json:"build_number"`
	CoreDigest   string `json:"core_digest"`
	GameInfoHash string `json:"gameinfo_hash"`

	// MarkerPresent reports whether the gameinfo patch marker was seen
	// during this pass. It is observed state, not part of the baseline.
	MarkerPresent bool `json:"-"`
}

// Options configure a Service. Paths are relative to the host root
// except BaselineFile, which is absolute.
type Options struct {
	HostRoot       string
	VersionFile    string
	GameInfoFile   string
	GameInfoMarker string
	BaselineFile   string
}

// Service reads current fingerprints and persists the baseline.
type Service struct {
	opts   Options
	logger *zap.Logger
}

// NewService creates a fingerprint service.
func NewService(opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Service{opts: opts, logger: logger}
}

// ReadCurrent parses the host version file and hashes the gameinfo
// control file. All file contents are read up front, then digested, so
// the fingerprint reflects a single point in time.
func (s *Service) ReadCurrent() (Fingerprint, error) {
	versionPath := filepath.Join(s.opts.HostRoot, s.opts.VersionFile)
	gameInfoPath := filepath.Join(s.opts.HostRoot, s.opts.GameInfoFile)

	versionData, err := os.ReadFile(versionPath)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to read version file: %w", err)
	}
	gameInfoData, err := os.ReadFile(gameInfoPath)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to read gameinfo file: %w", err)
	}

	hostVersion, buildNumber, err := parseVersion(versionPath)
	if err != nil {
		return Fingerprint{}, err
	}

	return Fingerprint{
		HostVersion:   hostVersion,
		BuildNumber:   buildNumber,
		CoreDigest:    shortDigest(versionData),
		GameInfoHash:  shortDigest(gameInfoData),
		MarkerPresent: strings.Contains(string(gameInfoData), s.opts.GameInfoMarker),
	}, nil
}

// ReadBaseline loads the persisted baseline. The second return is false
// when no baseline has been written yet.
func (s *Service) ReadBaseline() (Fingerprint, bool, error) {
	data, err := os.ReadFile(s.opts.BaselineFile)
	if err != nil {
		if os.IsNotExist(err) {
			return Fingerprint{}, false, nil
		}
		return Fingerprint{}, false, fmt.Errorf("failed to read baseline: %w", err)
	}

	var fp Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return Fingerprint{}, false, fmt.Errorf("failed to parse baseline: %w", err)
	}
	return fp, true, nil
}

// WriteBaseline persists a fingerprint as the new last-known-good
// baseline.
func (s *Service) WriteBaseline(fp Fingerprint) error {
	data, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.opts.BaselineFile), 0755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}
	if err := os.WriteFile(s.opts.BaselineFile, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write baseline: %w", err)
	}
	return nil
}

// Snapshot reads the current fingerprint and records it as the
// baseline. Called after a successful patch.
func (s *Service) Snapshot() error {
	fp, err := s.ReadCurrent()
	if err != nil {
		return err
	}
	return s.WriteBaseline(fp)
}

// NeedsRepatch reports whether the host drifted since the baseline was
// taken. A missing patch marker or a gameinfo content change each force
// a re-patch on their own; a build-number change is kept as an
// independent secondary signal.
func NeedsRepatch(current, baseline Fingerprint) bool {
	if !current.MarkerPresent {
		return true
	}
	if !strings.EqualFold(current.GameInfoHash, baseline.GameInfoHash) {
		return true
	}
	if current.BuildNumber != baseline.BuildNumber {
		return true
	}
	return false
}

// parseVersion extracts the display string and numeric build id from a
// key=value version file.
func parseVersion(path string) (string, int, error) {
	values, err := record.Read(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read version file: %w", err)
	}

	var hostVersion string
	for _, key := range versionKeys {
		if v, ok := values[key]; ok && v != "" {
			hostVersion = v
			break
		}
	}

	for _, key := range buildKeys {
		v, ok := values[key]
		if !ok {
			continue
		}
		build, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return "", 0, fmt.Errorf("invalid build number %q in %s: %w", v, path, err)
		}
		if hostVersion == "" {
			hostVersion = v
		}
		return hostVersion, build, nil
	}

	return "", 0, fmt.Errorf("no build number found in %s", path)
}

// shortDigest returns a short BLAKE3 content hash, enough to detect any
// content change without storing a full digest.
func shortDigest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
