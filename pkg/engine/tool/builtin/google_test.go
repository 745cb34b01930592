package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestGoogleWorkspaceBackend_SearchFiltersExcludedIDs(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"msg-1","name":"Q3 planning","snippet":"see attached"},
			{"id":"msg-2","name":"Q4 planning","snippet":"draft"}
		]}`))
	}))
	defer srv.Close()

	backend := NewGoogleWorkspaceBackend("Gmail", srv.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-123"}))

	results, err := backend.Search(context.Background(), "planning", []string{"msg-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "msg-2", results[0].DocumentID)
	assert.Equal(t, "Gmail", results[0].App)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}
