package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces"
)

// LatestVersion is the version value that asks for the newest published release
const LatestVersion = "latest"

const defaultGitHubAPIURL = "https://api.github.com"

// releaseRepos maps each scanner to the GitHub repository publishing it
var releaseRepos = map[entities.ToolName]string{
	entities.ToolTrivy:   "aquasecurity/trivy",
	entities.ToolCheckov: "bridgecrewio/checkov",
	entities.ToolOPA:     "open-policy-agent/conftest",
}

// gitHubRelease is the subset of the releases API response we read
type gitHubRelease struct {
	TagName    string `json:"tag_name"`
	Prerelease bool   `json:"prerelease"`
	Draft      bool   `json:"draft"`
}

// versionFetcher resolves "latest" to a concrete release tag
type versionFetcher struct {
	client *retryablehttp.Client
	apiURL string
	token  string
	logger interfaces.Logger
}

func newVersionFetcher(client *retryablehttp.Client, apiURL, token string, logger interfaces.Logger) *versionFetcher {
	logger = interfaces.OrNoOp(logger)
	if client == nil {
		client = newRetryClient(logger)
	}
	return &versionFetcher{
		client: client,
		apiURL: strings.TrimRight(stringOr(apiURL, defaultGitHubAPIURL), "/"),
		token:  token,
		logger: logger,
	}
}

// latestVersion returns the tag of the newest stable release of tool
func (vf *versionFetcher) latestVersion(ctx context.Context, tool entities.ToolName) (string, error) {
	repo, ok := releaseRepos[tool]
	if !ok {
		return "", fmt.Errorf("no release repository for %s", tool)
	}
	url := fmt.Sprintf("%s/repos/%s/releases/latest", vf.apiURL, repo)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	// a token only raises the rate limit; release metadata is public
	if vf.token != "" {
		req.Header.Set("Authorization", "Bearer "+vf.token)
	}

	resp, err := vf.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GitHub API request failed: %w", err)
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var release gitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("failed to parse GitHub response: %w", err)
	}
	switch {
	case release.Draft:
		return "", fmt.Errorf("latest %s release is a draft", tool.DisplayName())
	case release.Prerelease:
		return "", fmt.Errorf("latest %s release %s is a pre-release", tool.DisplayName(), release.TagName)
	case release.TagName == "":
		return "", fmt.Errorf("latest %s release has no tag", tool.DisplayName())
	}

	vf.logger.Debug("Resolved latest release", interfaces.F("tool", tool.DisplayName()), interfaces.F("tag", release.TagName))
	return release.TagName, nil
}
