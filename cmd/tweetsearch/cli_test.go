package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const archive = `window.YTD.tweets.part0 = [
  {"tweet": {"full_text": "Starship is going to Mars", "created_at": "Mon Jan 01 10:00:00 +0000 2024"}},
  {"tweet": {"full_text": "Tesla autopilot update rolling out", "created_at": "Tue Jan 02 10:00:00 +0000 2024"}}
]`

func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	src := filepath.Join(dir, "tweets.js")
	require.NoError(t, os.WriteFile(src, []byte(archive), 0o644))

	path := filepath.Join(dir, "tweetsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
embedding:
  provider: local
  dimensions: 128
store:
  path: %s
source:
  path: %s
`, filepath.Join(dir, "data"), src)), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestIndexThenSearch(t *testing.T) {
	cfg := writeConfig(t)

	out, _, err := execute(t, "--config", cfg, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexing tweets... this only happens once")
	assert.Contains(t, out, "Indexing complete! 2 tweets indexed")
	assert.Contains(t, out, "Database ready")

	out, _, err = execute(t, "--config", cfg, "index")
	require.NoError(t, err)
	assert.NotContains(t, out, "Indexing tweets")
	assert.Contains(t, out, "Database ready")

	out, _, err = execute(t, "--config", cfg, "search", "-k", "1", "Starship", "Mars")
	require.NoError(t, err)
	assert.Contains(t, out, "Starship is going to Mars")
	assert.NotContains(t, out, "Tesla")

	out, _, err = execute(t, "--config", cfg, "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"count": 2`)
	assert.Contains(t, out, `"build_state": "complete"`)
}

func TestSearchMissingConfig(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "search", "mars")
	assert.Error(t, err)
}

func TestInitWritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "tweetsearch.yaml")

	out, _, err := execute(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created")
	assert.FileExists(t, path)

	out, _, err = execute(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}
