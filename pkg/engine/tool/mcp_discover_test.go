package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	name  string
	tools []Tool
	err   error
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) DiscoverTools(ctx context.Context) ([]Tool, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tools, nil
}

func TestDiscoverAll_MergesResultsByConnector(t *testing.T) {
	sources := []Source{
		&stubSource{name: "jira", tools: []Tool{&stubTool{name: "searchIssues"}}},
		&stubSource{name: "confluence", tools: []Tool{&stubTool{name: "searchPages"}, &stubTool{name: "getPage"}}},
	}

	out, err := DiscoverAll(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, out["jira"], 1)
	assert.Len(t, out["confluence"], 2)
}

func TestDiscoverAll_OneFailureFailsTheWhole(t *testing.T) {
	sources := []Source{
		&stubSource{name: "jira", tools: []Tool{&stubTool{name: "searchIssues"}}},
		&stubSource{name: "broken", err: errors.New("connection refused")},
	}

	_, err := DiscoverAll(context.Background(), sources)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
