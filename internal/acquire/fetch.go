package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// sha1HexPattern matches a published SHA-1 hash record.
var sha1HexPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// releaseAsset is one downloadable file attached to a release.
type releaseAsset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// release is the releases-API record the asset list is read from.
type release struct {
	TagName string         `json:"tag_name"`
	Assets  []releaseAsset `json:"assets"`
}

// FetchFirst downloads one logical resource from an ordered list of
// source URLs. The first source returning a non-empty success response
// wins; transient failures are retried per source before moving on.
// All sources failing returns ErrAllMirrorsFailed.
func (a *Acquirer) FetchFirst(ctx context.Context, urls []string) ([]byte, error) {
	var lastErr error
	for _, url := range urls {
		data, err := a.fetchWithRetry(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("source failed, trying next",
				zap.String("url", url),
				zap.Error(err))
			lastErr = err
			continue
		}
		if len(data) == 0 {
			lastErr = fmt.Errorf("empty response from %s", url)
			continue
		}
		return data, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrAllMirrorsFailed, lastErr)
	}
	return nil, ErrAllMirrorsFailed
}

// ResolveAssetURL queries the releases API and returns the download URL
// of the first asset in the latest release whose filename ends with
// suffix. The manifest record may not point directly at the archive, so
// this secondary lookup resolves the real asset location.
func (a *Acquirer) ResolveAssetURL(ctx context.Context, releasesURL, suffix string) (string, error) {
	data, _, err := a.fetchOnce(ctx, releasesURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch releases: %w", err)
	}

	var rel release
	if err := json.Unmarshal(data, &rel); err != nil {
		return "", fmt.Errorf("failed to parse releases: %w", err)
	}

	for _, asset := range rel.Assets {
		if strings.HasSuffix(strings.ToLower(asset.Name), strings.ToLower(suffix)) {
			return asset.DownloadURL, nil
		}
	}

	return "", fmt.Errorf("no asset matching suffix %q in release %s", suffix, rel.TagName)
}

// ResolveBinaryAsset is ResolveAssetURL returning the release tag as
// well, for callers that compare versions before downloading.
func (a *Acquirer) ResolveBinaryAsset(ctx context.Context, releasesURL, suffix string) (tag, downloadURL string, err error) {
	data, _, err := a.fetchOnce(ctx, releasesURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch releases: %w", err)
	}

	var rel release
	if err := json.Unmarshal(data, &rel); err != nil {
		return "", "", fmt.Errorf("failed to parse releases: %w", err)
	}

	for _, asset := range rel.Assets {
		if strings.HasSuffix(strings.ToLower(asset.Name), strings.ToLower(suffix)) {
			return rel.TagName, asset.DownloadURL, nil
		}
	}

	return "", "", fmt.Errorf("no asset matching suffix %q in release %s", suffix, rel.TagName)
}

// FetchRemoteHash downloads the plaintext published hash from the
// mirror list and validates it looks like a SHA-1 hex digest.
func (a *Acquirer) FetchRemoteHash(ctx context.Context, urls []string) (string, error) {
	data, err := a.FetchFirst(ctx, urls)
	if err != nil {
		return "", err
	}

	hash := strings.TrimSpace(string(data))
	// Published hash files sometimes carry "<hash>  <filename>" lines.
	if idx := strings.IndexAny(hash, " \t"); idx > 0 {
		hash = hash[:idx]
	}
	if !sha1HexPattern.MatchString(hash) {
		return "", fmt.Errorf("published hash is not a SHA-1 digest: %q", hash)
	}

	return strings.ToLower(hash), nil
}

// fetchWithRetry fetches a single URL, retrying transient failures up
// to the policy's attempt count with a fixed delay.
func (a *Acquirer) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= a.retry.Attempts; attempt++ {
		data, retryable, err := a.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable || attempt == a.retry.Attempts {
			return nil, err
		}

		a.logger.Debug("transient failure, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-time.After(a.retry.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// fetchOnce performs one GET. The second return reports whether the
// failure is transient: server errors and rate limiting are retried,
// other client errors are not.
func (a *Acquirer) fetchOnce(ctx context.Context, url string) (data []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("failed to read response: %w", err)
		}
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	default:
		return nil, false, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
}
