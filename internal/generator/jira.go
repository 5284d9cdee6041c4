package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appErr "github.com/caseforge/engine/pkg/errors"
)

// Issue is the subset of a JIRA issue the generator needs.
type Issue struct {
	Key             string `json:"key"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	AttachmentCount int    `json:"attachment_count"`
}

// FetchReason classifies why an issue fetch failed.
type FetchReason string

const (
	ReasonAuth      FetchReason = "auth"
	ReasonForbidden FetchReason = "forbidden"
	ReasonNotFound  FetchReason = "not_found"
	ReasonNetwork   FetchReason = "network"
	ReasonOther     FetchReason = "other"
)

// FetchError is a typed issue-fetch failure.
type FetchError struct {
	Reason FetchReason
	Key    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch issue %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch issue %s: %s", e.Key, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AppCode maps the failure reason to the API error code: credential and
// permission failures render as forbidden, a missing issue as not found,
// everything else as an upstream failure.
func (e *FetchError) AppCode() appErr.Code {
	switch e.Reason {
	case ReasonAuth, ReasonForbidden:
		return appErr.CodeForbidden
	case ReasonNotFound:
		return appErr.CodeNotFound
	default:
		return appErr.CodeUpstream
	}
}

// IssueFetcher retrieves issue details from the tracker.
type IssueFetcher interface {
	Fetch(ctx context.Context, issueKey string) (*Issue, error)
}

type jiraFetcher struct {
	baseURL string
	email   string
	token   string
	client  *http.Client
}

// NewJiraFetcher builds an IssueFetcher backed by the JIRA REST v2 API with
// basic auth (email + API token).
func NewJiraFetcher(baseURL, email, token string) IssueFetcher {
	return &jiraFetcher{
		baseURL: baseURL,
		email:   email,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type jiraIssueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Attachment  []struct {
			Filename string `json:"filename"`
		} `json:"attachment"`
	} `json:"fields"`
}

func (f *jiraFetcher) Fetch(ctx context.Context, issueKey string) (*Issue, error) {
	url := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=summary,description,attachment", f.baseURL, issueKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Reason: ReasonOther, Key: issueKey, Err: err}
	}
	req.SetBasicAuth(f.email, f.token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Reason: ReasonNetwork, Key: issueKey, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, &FetchError{Reason: ReasonAuth, Key: issueKey}
	case http.StatusForbidden:
		return nil, &FetchError{Reason: ReasonForbidden, Key: issueKey}
	case http.StatusNotFound:
		return nil, &FetchError{Reason: ReasonNotFound, Key: issueKey}
	default:
		return nil, &FetchError{Reason: ReasonOther, Key: issueKey, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var body jiraIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &FetchError{Reason: ReasonOther, Key: issueKey, Err: err}
	}

	return &Issue{
		Key:             issueKey,
		Title:           body.Fields.Summary,
		Description:     body.Fields.Description,
		AttachmentCount: len(body.Fields.Attachment),
	}, nil
}
