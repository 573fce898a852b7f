// Package version carries the linker's own build version, stamped at
// link time via -ldflags.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Set by the build:
//
//	go build -ldflags "-X .../internal/version.tag=v1.2.3 -X .../internal/version.commit=abc1234 -X .../internal/version.date=2026-08-24"
var (
	tag    = "v0.0.0"
	commit = ""
	date   = ""
)

// Version represents the application version
type Version struct {
	Major  int    `json:"major"`
	Minor  int    `json:"minor"`
	Patch  int    `json:"patch"`
	Commit string `json:"commit,omitempty"`
	Date   string `json:"date,omitempty"`
}

// String returns the version in semantic format
func (v Version) String() string {
	ver := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Commit != "" {
		ver += "+" + v.Commit
	}
	return ver
}

// Current returns the version this binary was built as. An unparseable
// build tag falls back to the zero version rather than failing.
func Current() Version {
	major, minor, patch, err := ParseTag(tag)
	if err != nil {
		return Version{Commit: commit, Date: date}
	}
	return Version{Major: major, Minor: minor, Patch: patch, Commit: commit, Date: date}
}

// ParseTag extracts version components from a git tag (e.g., "v1.2.3")
func ParseTag(tag string) (major, minor, patch int, err error) {
	tagVersion := strings.TrimPrefix(tag, "v")
	parts := strings.Split(tagVersion, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid tag format: %s (expected vX.Y.Z)", tag)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid major version in tag %s: %w", tag, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid minor version in tag %s: %w", tag, err)
	}
	patch, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid patch version in tag %s: %w", tag, err)
	}

	return major, minor, patch, nil
}
