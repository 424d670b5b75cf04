package actions

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Event describes the workflow run that invoked the gate
type Event struct {
	Name     string
	Owner    string
	Repo     string
	PRNumber int
	APIURL   string
	RunID    string
}

// IsPullRequest reports whether a pull request comment can be published for this event
func (e Event) IsPullRequest() bool {
	return isPullRequestEvent(e.Name) && e.PRNumber > 0
}

func isPullRequestEvent(name string) bool {
	return name == "pull_request" || name == "pull_request_target"
}

type eventPayload struct {
	Number      int `json:"number"`
	PullRequest *struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Repository *struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// LoadEvent reads the runner environment and the GITHUB_EVENT_PATH payload.
// Outside Actions it returns an Event with only what the environment provides.
func LoadEvent(getenv func(string) string) (Event, error) {
	event := Event{
		Name:   getenv("GITHUB_EVENT_NAME"),
		APIURL: getenv("GITHUB_API_URL"),
		RunID:  getenv("GITHUB_RUN_ID"),
	}
	if owner, repo, ok := strings.Cut(getenv("GITHUB_REPOSITORY"), "/"); ok {
		event.Owner, event.Repo = owner, repo
	}

	path := getenv("GITHUB_EVENT_PATH")
	if path == "" {
		return event, nil
	}

	//nolint:gosec // G304: path is provided by the Actions runner
	data, err := os.ReadFile(path)
	if err != nil {
		return event, fmt.Errorf("failed to read event payload: %w", err)
	}

	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return event, fmt.Errorf("failed to parse event payload: %w", err)
	}

	if payload.PullRequest != nil {
		event.PRNumber = payload.PullRequest.Number
	}
	if event.PRNumber == 0 && isPullRequestEvent(event.Name) {
		event.PRNumber = payload.Number
	}
	if payload.Repository != nil {
		if event.Owner == "" {
			event.Owner = payload.Repository.Owner.Login
		}
		if event.Repo == "" {
			event.Repo = payload.Repository.Name
		}
	}
	return event, nil
}
