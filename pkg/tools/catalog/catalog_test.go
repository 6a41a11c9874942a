package catalog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tb0hdan/polyprompt-mcp/pkg/registry"
	"github.com/tb0hdan/polyprompt-mcp/pkg/server"
)

func listModels(t *testing.T, reg *registry.Registry, input Input) []registry.ModelConfig {
	t.Helper()

	srv := server.NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0.0"}, nil, nil, reg)
	tool := New(zerolog.Nop()).(*Tool)
	require.NoError(t, tool.Register(srv))

	result, _, err := tool.ModelsHandler(context.Background(), nil, input)
	require.NoError(t, err)

	var response struct {
		Total  int                    `json:"total"`
		Models []registry.ModelConfig `json:"models"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].(*mcp.TextContent).Text), &response))
	assert.Equal(t, len(response.Models), response.Total)
	return response.Models
}

func TestModelsHandler_Defaults(t *testing.T) {
	list := listModels(t, nil, Input{})

	require.Len(t, list, len(registry.DefaultModels()))
	assert.Equal(t, "gpt-4o", list[0].ID)
	assert.Equal(t, "openai", list[0].Provider)
	assert.InDelta(t, 0.0025, list[0].CostPer1kInput, 1e-12)
}

func TestModelsHandler_Unavailable(t *testing.T) {
	reg := registry.New(registry.ModelConfig{ID: "gpt-3.5-turbo", Available: false})

	available := listModels(t, reg, Input{})
	for _, m := range available {
		assert.NotEqual(t, "gpt-3.5-turbo", m.ID)
	}

	all := listModels(t, reg, Input{IncludeUnavailable: true})
	assert.Len(t, all, len(registry.DefaultModels())+1)
	assert.Equal(t, "gpt-3.5-turbo", all[len(all)-1].ID)
}
