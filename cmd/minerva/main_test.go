package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExpandConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wdir := filepath.Join(dir, "wildcards")
	require.NoError(t, os.MkdirAll(wdir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wdir, "color.txt"), []byte("red\nblue\n"), 0o644))

	path := filepath.Join(dir, "minerva.yaml")
	body := "settings:\n" +
		"  templates: [\"a [COLOR] box\", \"plain\"]\n" +
		"  next_template: 1\n" +
		"  wildcard_dir: " + wdir + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestExpandGivenTemplate(t *testing.T) {
	cfg := writeExpandConfig(t)
	out, err := execute(t, "--config", cfg, "expand", "-n", "4", "--seed", "3", "a [COLOR] box")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	for _, l := range lines {
		assert.Regexp(t, `^a (red|blue) box$`, l)
	}

	again, err := execute(t, "--config", cfg, "expand", "-n", "4", "--seed", "3", "a [COLOR] box")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestExpandDefaultsToNextTemplate(t *testing.T) {
	out, err := execute(t, "--config", writeExpandConfig(t), "expand", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "plain\nplain\n", out)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}
