package generator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/caseforge/engine/pkg/errors"
)

func TestFetchParsesIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/issue/TES-1", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "qa@example.com", user)
		require.Equal(t, "token123", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"key": "TES-1",
			"fields": {
				"summary": "Login page broken",
				"description": "Steps to reproduce...",
				"attachment": [{"filename": "screen.png"}, {"filename": "log.txt"}]
			}
		}`))
	}))
	defer srv.Close()

	f := NewJiraFetcher(srv.URL, "qa@example.com", "token123")
	issue, err := f.Fetch(context.Background(), "TES-1")
	require.NoError(t, err)
	require.Equal(t, "TES-1", issue.Key)
	require.Equal(t, "Login page broken", issue.Title)
	require.Equal(t, "Steps to reproduce...", issue.Description)
	require.Equal(t, 2, issue.AttachmentCount)
}

func TestFetchClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		reason FetchReason
	}{
		{http.StatusUnauthorized, ReasonAuth},
		{http.StatusForbidden, ReasonForbidden},
		{http.StatusNotFound, ReasonNotFound},
		{http.StatusInternalServerError, ReasonOther},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		f := NewJiraFetcher(srv.URL, "qa@example.com", "token123")
		_, err := f.Fetch(context.Background(), "TES-1")
		srv.Close()

		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, tc.reason, fe.Reason, "status %d", tc.status)
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	f := NewJiraFetcher(srv.URL, "qa@example.com", "token123")
	_, err := f.Fetch(context.Background(), "TES-1")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, ReasonNetwork, fe.Reason)
}

func TestFetchErrorAppCodes(t *testing.T) {
	cases := map[FetchReason]appErr.Code{
		ReasonAuth:      appErr.CodeForbidden,
		ReasonForbidden: appErr.CodeForbidden,
		ReasonNotFound:  appErr.CodeNotFound,
		ReasonNetwork:   appErr.CodeUpstream,
		ReasonOther:     appErr.CodeUpstream,
	}
	for reason, want := range cases {
		fe := &FetchError{Reason: reason, Key: "TES-1"}
		require.Equal(t, want, fe.AppCode())
	}
}
