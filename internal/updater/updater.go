// Package updater checks GitHub releases for newer builds and can replace the
// running binary in place.
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ReleaseURL is the GitHub API endpoint for the latest release.
const ReleaseURL = "https://api.github.com/repos/subhunt/subhunt/releases/latest"

type release struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// Check fetches the latest release and reports whether it is newer than
// current. client may be nil.
func Check(ctx context.Context, client *http.Client, url, current string) (latest string, hasUpdate bool, err error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("checking for updates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("checking for updates: unexpected status %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", false, fmt.Errorf("decoding release info: %w", err)
	}
	latest = strings.TrimPrefix(rel.TagName, "v")
	return latest, CompareVersions(latest, strings.TrimPrefix(current, "v")) > 0, nil
}

// CompareVersions compares dotted numeric versions and returns -1, 0 or 1.
// Non-numeric components compare as zero.
func CompareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var va, vb int
		if i < len(pa) {
			va, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			vb, _ = strconv.Atoi(pb[i])
		}
		if va < vb {
			return -1
		}
		if va > vb {
			return 1
		}
	}
	return 0
}

// Upgrade downloads the release asset for this platform and swaps it in for
// the running binary, keeping a .bak copy of the old one.
func Upgrade(ctx context.Context, client *http.Client, url, current string) error {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching release info: %w", err)
	}
	defer resp.Body.Close()

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return fmt.Errorf("decoding release info: %w", err)
	}
	latest := strings.TrimPrefix(rel.TagName, "v")
	if CompareVersions(latest, strings.TrimPrefix(current, "v")) <= 0 {
		return fmt.Errorf("already running the latest version (%s)", current)
	}

	want := fmt.Sprintf("subhunt_%s_%s", runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		want += ".exe"
	}
	var assetURL string
	for _, a := range rel.Assets {
		if a.Name == want {
			assetURL = a.BrowserDownloadURL
			break
		}
	}
	if assetURL == "" {
		return fmt.Errorf("no release asset for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	return replaceBinary(ctx, client, assetURL)
}

func replaceBinary(ctx context.Context, client *http.Client, assetURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading update: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading update: unexpected status %d", resp.StatusCode)
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating current binary: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(self), "subhunt-update-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing update: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing update: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("marking update executable: %w", err)
	}

	backup := self + ".bak"
	os.Remove(backup)
	if err := os.Rename(self, backup); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("backing up current binary: %w", err)
	}
	if err := os.Rename(tmpPath, self); err != nil {
		os.Rename(backup, self)
		return fmt.Errorf("installing update: %w", err)
	}
	return nil
}
