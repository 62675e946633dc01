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
	assert.Equal(t, RuleCompletionShare, cfg.Impact.Rule)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, 1.0, cfg.Impact.HoursWeight)
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("impact:\n  rule: completed_hours\n  hours_weight: 2.5\n"))
	require.NoError(t, err)
	assert.Equal(t, RuleCompletedHours, cfg.Impact.Rule)
	assert.Equal(t, 2.5, cfg.Impact.HoursWeight)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestFromYAMLRejectsUnknownRule(t *testing.T) {
	_, err := FromYAML([]byte("impact:\n  rule: magic\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "impact.rule")
}

func TestFromYAMLRejectsBadBasePath(t *testing.T) {
	_, err := FromYAML([]byte("server:\n  base_path: v1\n"))
	require.Error(t, err)
}

func TestLoadOptionalWithoutFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobline.yml"), []byte("log:\n  mode: prod\n"), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Log.Mode)

	_, err = Load(t.TempDir())
	require.Error(t, err)
}

func TestJWTSecretFromEnv(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecretEnv = "JOBLINE_TEST_SECRET"
	t.Setenv("JOBLINE_TEST_SECRET", "  s3cret ")
	assert.Equal(t, "s3cret", cfg.JWTSecret())
}
