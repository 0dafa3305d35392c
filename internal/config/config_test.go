package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Len(t, cfg.Roles, 8)
	assert.Equal(t, 8, cfg.Roles["senior_manager"])
	assert.Equal(t, 1, cfg.Roles["intern"])
}

func TestFromYAMLRejectsBadRoles(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no roles", yaml: "server:\n  addr: :8080\n"},
		{name: "zero level", yaml: "roles:\n  intern: 0\n"},
		{name: "negative level", yaml: "roles:\n  intern: -2\n"},
		{name: "bad log level", yaml: "logging:\n  level: loud\nroles:\n  intern: 1\n"},
		{name: "bad log format", yaml: "logging:\n  format: xml\nroles:\n  intern: 1\n"},
		{name: "relative base path", yaml: "server:\n  base_path: api\nroles:\n  intern: 1\n"},
		{name: "not yaml", yaml: "roles: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestFromYAMLCustomRoles(t *testing.T) {
	cfg, err := FromYAML([]byte("roles:\n  director: 3\n  lead: 2\n  peer: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"director": 3, "lead": 2, "peer": 2}, cfg.Roles)
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Len(t, cfg.Roles, 8)

	_, err = Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "taskflow.yml"), []byte("roles:\n  solo: 1\n"), 0o644))
	cfg, err = LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"solo": 1}, cfg.Roles)
}
