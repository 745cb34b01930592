// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/agentrun/turnengine/pkg/httpclient"
)

// GoogleWorkspaceBackend searches one Google Workspace surface (Gmail,
// Drive, Calendar, Contacts) over its REST search endpoint, authenticated
// with a per-user OAuth2 token. It implements SearchBackend so it plugs
// directly into NewConnectorSearch.
type GoogleWorkspaceBackend struct {
	http     *httpclient.Client
	tokens   oauth2.TokenSource
	endpoint string // e.g. "https://www.googleapis.com/gmail/v1/users/me/messages"
	app      string
}

// NewGoogleWorkspaceBackend builds a backend for one Workspace surface.
// endpoint is the list/search REST endpoint for that surface; tokens
// supplies a per-request bearer token for the connected account.
func NewGoogleWorkspaceBackend(app, endpoint string, tokens oauth2.TokenSource) *GoogleWorkspaceBackend {
	return &GoogleWorkspaceBackend{
		http:     httpclient.New(nil, httpclient.DefaultConfig()),
		tokens:   tokens,
		endpoint: endpoint,
		app:      app,
	}
}

type googleSearchResponse struct {
	Items []struct {
		ID       string `json:"id"`
		Title    string `json:"name"`
		Snippet  string `json:"snippet"`
		Link     string `json:"webViewLink"`
		Modifier string `json:"modifiedByMeTime"`
	} `json:"items"`
}

// Search issues an authenticated GET against the configured Workspace
// endpoint and adapts the response into SearchResult entries.
func (b *GoogleWorkspaceBackend) Search(ctx context.Context, query string, excludedIDs []string) ([]SearchResult, error) {
	token, err := b.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("googleWorkspace(%s): token: %w", b.app, err)
	}

	u := b.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := b.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("googleWorkspace(%s): %w", b.app, err)
	}
	defer resp.Body.Close()

	var parsed googleSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("googleWorkspace(%s): decode: %w", b.app, err)
	}

	excluded := make(map[string]struct{}, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = struct{}{}
	}

	results := make([]SearchResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if _, skip := excluded[item.ID]; skip {
			continue
		}
		results = append(results, SearchResult{
			DocumentID: item.ID,
			Title:      item.Title,
			Content:    item.Snippet,
			URL:        item.Link,
			App:        b.app,
		})
	}
	return results, nil
}
