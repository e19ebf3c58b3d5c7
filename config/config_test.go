package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "neo4j://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.Username)
	assert.Equal(t, "", cfg.Neo4j.Password)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
	assert.Equal(t, "default", cfg.Connection)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 15, cfg.PerPage)
	assert.Equal(t, "page", cfg.PageName)
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"NEOGRAPH_NEO4J_URI":      "bolt://graph:7687",
		"NEOGRAPH_NEO4J_PASSWORD": "secret",
		"NEOGRAPH_CONNECTION":     "analytics",
		"NEOGRAPH_PER_PAGE":       "50",
		"NEOGRAPH_PAGE_NAME":      "p",
		"NEO4J_URI":               "ignored://without-prefix",
	})
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, "secret", cfg.Neo4j.Password)
	assert.Equal(t, "analytics", cfg.Connection)
	assert.Equal(t, 50, cfg.PerPage)
	assert.Equal(t, "p", cfg.PageName)
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "not a number", env: map[string]string{"NEOGRAPH_PER_PAGE": "many"}},
		{name: "zero page size", env: map[string]string{"NEOGRAPH_PER_PAGE": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.env)
			assert.Error(t, err)
		})
	}
}
