package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	Version, Commit, Date = "1.2.3", "abc", "today"
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "socialshard 1.2.3 (commit: abc, built: today)\n", out)
}

func TestConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socialshard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ranking:\n  soft_cap: 80\n  hard_cap: 60\n"), 0o644))

	out, err := run(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "soft_cap: 80")
	assert.Contains(t, out, "max_page: 100")

	out, err = run(t, "config", "show", "--config", path, "--output", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"soft_cap": 80`)

	_, err = run(t, "config", "show", "--config", path, "--output", "toml")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socialshard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ranking:\n  hard_cap: 500\n"), 0o644))

	_, err := run(t, "config", "validate", "--config", path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: ok\n"), 0o644))
	out, err := run(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
}

func TestUnknownCommand(t *testing.T) {
	_, err := run(t, "explode")
	assert.Error(t, err)
}
