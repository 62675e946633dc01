package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobline/internal/engine"
)

func TestOpenMigratesAndWiresEngine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobline.yml"), []byte("impact:\n  rule: completed_hours\nlog:\n  mode: prod\n"), 0o644))
	a, err := Open(context.Background(), dir)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "completed_hours", a.Engine.Impact.Rule.Name())
	j, err := a.Engine.Jobs.Create(context.Background(), "alice", engine.JobInput{Title: "boot"})
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
}

func TestSetEnvValueKeepsOtherKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JOBLINE_JWT_SECRET=abc\n"), 0o600))
	require.NoError(t, SetEnvValue(dir, OwnerEnv, "alice"))
	require.NoError(t, SetEnvValue(dir, OwnerEnv, "bob"))

	data, err := os.ReadFile(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `JOBLINE_JWT_SECRET="abc"`)
	assert.Contains(t, string(data), `JOBLINE_OWNER="bob"`)
}

func TestLoadEnvMissingFile(t *testing.T) {
	require.NoError(t, LoadEnv(t.TempDir()))
}

func TestResolveOwner(t *testing.T) {
	t.Setenv(OwnerEnv, "from-env")
	o, err := ResolveOwner("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", o)
	o, err = ResolveOwner("flag")
	require.NoError(t, err)
	assert.Equal(t, "flag", o)
	t.Setenv(OwnerEnv, "")
	_, err = ResolveOwner(" ")
	require.Error(t, err)
}
