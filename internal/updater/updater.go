// Package updater talks to the GitHub Releases API to discover newer
// builds and swap the installed binaries in place.
package updater

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/forgeline-io/forgeline/internal/buildinfo"
)

const releasesURL = "https://api.github.com/repos/forgeline-io/forgeline/releases/latest"

var httpClient = &http.Client{Timeout: 30 * time.Second}

// ReleaseInfo is the subset of a GitHub release the updater cares about.
type ReleaseInfo struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// UpdateResult describes the outcome of an update check.
type UpdateResult struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string
	ReleaseURL     string
	Release        *ReleaseInfo
}

// CheckForUpdate fetches the latest release and compares it against the
// running build. A repo with no releases yet reports no update rather
// than an error. Dev builds have no parseable version, so any published
// release counts as newer for them.
func CheckForUpdate() (*UpdateResult, error) {
	release, err := fetchLatestRelease()
	if err != nil {
		return nil, err
	}
	result := &UpdateResult{CurrentVersion: buildinfo.Version}
	if release == nil {
		return result, nil
	}

	result.LatestVersion = strings.TrimPrefix(release.TagName, "v")
	result.ReleaseURL = release.HTMLURL
	result.Release = release

	current, err := ParseSemver(buildinfo.Version)
	if err != nil {
		result.Available = true
		return result, nil
	}
	latest, err := ParseSemver(result.LatestVersion)
	if err != nil {
		return nil, fmt.Errorf("parse latest version %q: %w", result.LatestVersion, err)
	}
	result.Available = current.LessThan(latest)
	return result, nil
}

// fetchLatestRelease returns nil without error when the repo has no
// releases.
func fetchLatestRelease() (*ReleaseInfo, error) {
	req, err := http.NewRequest(http.MethodGet, releasesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "forgeline/"+buildinfo.Version)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch releases: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("GitHub API returned %d", resp.StatusCode)
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &release, nil
}

// CLIAssetName returns the release asset name for the CLI on this
// platform.
func CLIAssetName() string { return assetName("forgeline") }

// DaemonAssetName returns the release asset name for the daemon on this
// platform.
func DaemonAssetName() string { return assetName("forgelined") }

func assetName(binary string) string {
	return fmt.Sprintf("%s-%s-%s", binary, runtime.GOOS, runtime.GOARCH)
}

// FindAsset returns the release asset with the given name, or nil.
func FindAsset(release *ReleaseInfo, name string) *Asset {
	for i := range release.Assets {
		if release.Assets[i].Name == name {
			return &release.Assets[i]
		}
	}
	return nil
}

// DownloadAsset fetches an asset into a temp file, marks it executable,
// and returns its path. The caller removes the file.
func DownloadAsset(asset *Asset) (string, error) {
	resp, err := httpClient.Get(asset.BrowserDownloadURL)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", asset.Name, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "forgeline-update-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	_, err = io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0755)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	return tmp.Name(), nil
}

// ReplaceBinary installs the binary at newPath over destPath. The old
// binary is parked at destPath.bak for the duration so a failed install
// can roll back.
func ReplaceBinary(destPath, newPath string) error {
	destPath, err := filepath.EvalSymlinks(destPath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", destPath, err)
	}

	bak := destPath + ".bak"
	os.Remove(bak)

	if err := os.Rename(destPath, bak); err != nil {
		return fmt.Errorf("back up old binary: %w", err)
	}
	if err := os.Rename(newPath, destPath); err != nil {
		_ = os.Rename(bak, destPath)
		return fmt.Errorf("install new binary: %w", err)
	}
	os.Remove(bak)
	return nil
}
