package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
	"github.com/ochairo/prgate/internal/domain/services"
)

const (
	// DefaultGitHubAPIURL is used when GITHUB_API_URL is not set
	DefaultGitHubAPIURL = "https://api.github.com"

	commentsPerPage = 100
	// maxCommentPages bounds the lookup on very busy pull requests
	maxCommentPages = 30
)

// GitHubSinkConfig identifies the pull request the report is published to
type GitHubSinkConfig struct {
	Token     string
	Owner     string
	Repo      string
	PRNumber  int
	BaseURL   string
	UserAgent string

	// Client overrides the retrying HTTP client (tests)
	Client *retryablehttp.Client
	Logger interfaces.Logger
}

// githubComment represents the GitHub API issue comment format
type githubComment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

// githubCommentSink publishes the gate report as a pull request comment
type githubCommentSink struct {
	client    *retryablehttp.Client
	baseURL   string
	token     string
	owner     string
	repo      string
	prNumber  int
	userAgent string
	logger    interfaces.Logger
}

// NewGitHubCommentSink creates a ReportSink backed by the GitHub REST API
func NewGitHubCommentSink(cfg GitHubSinkConfig) (gateways.ReportSink, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" || cfg.PRNumber <= 0 {
		return nil, fmt.Errorf("repository and pull request number are required")
	}

	logger := interfaces.OrNoOp(cfg.Logger)
	client := cfg.Client
	if client == nil {
		client = newRetryClient(logger)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultGitHubAPIURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "prgate/1.0"
	}

	return &githubCommentSink{
		client:    client,
		baseURL:   baseURL,
		token:     cfg.Token,
		owner:     cfg.Owner,
		repo:      cfg.Repo,
		prNumber:  cfg.PRNumber,
		userAgent: userAgent,
		logger:    logger,
	}, nil
}

// FindExisting returns the first earlier gate report carrying title
func (g *githubCommentSink) FindExisting(ctx context.Context, title string) (*gateways.CommentHandle, error) {
	for page := 1; page <= maxCommentPages; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?per_page=%d&page=%d",
			g.baseURL, g.owner, g.repo, g.prNumber, commentsPerPage, page)

		var comments []githubComment
		if err := g.do(ctx, http.MethodGet, url, nil, http.StatusOK, &comments); err != nil {
			return nil, fmt.Errorf("failed to list comments: %w", err)
		}

		for _, c := range comments {
			if strings.Contains(c.Body, services.ReportMarker) && strings.Contains(c.Body, title) {
				g.logger.Debug("Found existing report comment", interfaces.F("id", c.ID))
				return &gateways.CommentHandle{ID: c.ID, HTMLURL: c.HTMLURL}, nil
			}
		}

		if len(comments) < commentsPerPage {
			break
		}
	}
	return nil, nil
}

// CreateOrUpdate edits the comment behind handle, or creates a new one
func (g *githubCommentSink) CreateOrUpdate(ctx context.Context, handle *gateways.CommentHandle, body string) (string, error) {
	payload := map[string]string{"body": body}

	var result githubComment
	if handle != nil {
		url := fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", g.baseURL, g.owner, g.repo, handle.ID)
		if err := g.do(ctx, http.MethodPatch, url, payload, http.StatusOK, &result); err != nil {
			return "", fmt.Errorf("failed to update comment %d: %w", handle.ID, err)
		}
		g.logger.Info("Updated existing report comment", interfaces.F("id", handle.ID))
		if result.HTMLURL == "" {
			return handle.HTMLURL, nil
		}
		return result.HTMLURL, nil
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", g.baseURL, g.owner, g.repo, g.prNumber)
	if err := g.do(ctx, http.MethodPost, url, payload, http.StatusCreated, &result); err != nil {
		return "", fmt.Errorf("failed to create comment: %w", err)
	}
	g.logger.Info("Created report comment", interfaces.F("id", result.ID))
	return result.HTMLURL, nil
}

// do sends a JSON request and decodes the response into out
func (g *githubCommentSink) do(ctx context.Context, method, url string, payload interface{}, wantStatus int, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", g.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("status %d (failed to read response)", resp.StatusCode)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
