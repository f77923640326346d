// Package update checks GitHub for a newer released build. The check is
// advisory: any failure (network, decode, bad tag) yields nil and the CLI
// carries on.
package update

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// GitHubReleasesURL is the latest-release endpoint. Overridden in tests.
var GitHubReleasesURL = "https://api.github.com/repos/lunar-chat/lunar-cli/releases/latest"

// CheckTimeout bounds the whole release lookup so a slow GitHub response
// never delays the version command noticeably.
const CheckTimeout = 5 * time.Second

// Release is the subset of the GitHub release payload the check reads.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckResult describes the outcome of a successful release lookup.
type CheckResult struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateURL       string
	UpdateAvailable bool
}

// CheckForUpdate compares the running version against the latest GitHub
// release. Dev builds are never checked. Returns nil on any failure.
func CheckForUpdate(ctx context.Context, currentVersion string) *CheckResult {
	if currentVersion == "dev" || currentVersion == "" {
		return nil
	}

	release, err := fetchLatestRelease(ctx)
	if err != nil {
		return nil
	}

	result := &CheckResult{
		CurrentVersion: currentVersion,
		LatestVersion:  strings.TrimPrefix(release.TagName, "v"),
		UpdateURL:      release.HTMLURL,
	}

	current := normalizeVersion(currentVersion)
	latest := normalizeVersion(release.TagName)
	if semver.IsValid(current) && semver.IsValid(latest) {
		result.UpdateAvailable = semver.Compare(latest, current) > 0
	}
	return result
}

func fetchLatestRelease(ctx context.Context) (*Release, error) {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GitHubReleasesURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode}
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}
	return &release, nil
}

type statusError struct{ status int }

func (e *statusError) Error() string {
	return "release lookup failed with status " + http.StatusText(e.status)
}

// normalizeVersion prefixes a bare version with "v" so semver accepts both
// "1.2.3" (ldflags style) and "v1.2.3" (git tag style).
func normalizeVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
