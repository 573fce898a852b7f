// Package record reads and writes the small key=value cache files the
// linker keeps next to the install directory: the local package hash
// record and the host version cache.
package record

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Read parses a key=value record file. Blank lines and lines starting
// with # are skipped. A missing file surfaces as the os.Open error so
// callers can treat not-exist as an absent record.
func Read(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", path, err)
	}

	return values, nil
}

// Write persists a record with sorted keys so output is deterministic.
func Write(path string, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(values[key])
		sb.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write record %s: %w", path, err)
	}

	return nil
}
