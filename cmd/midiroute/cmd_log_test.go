package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogTailEmpty(t *testing.T) {
	dir := t.TempDir()

	out, err := runCmd(t, "--config-dir", dir, "log", "tail")
	require.NoError(t, err)
	assert.Contains(t, out, "log is empty")
}

func TestLogTailRejectsBadConfigDir(t *testing.T) {
	// configDir points at a regular file, so the config.json path beneath
	// it can never be read or created; LoadAppConfig surfaces that as an
	// error, which should map to exit code 2.
	dir := t.TempDir()
	notADir := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(notADir, []byte("not a directory"), 0o644))

	_, err := runCmd(t, "--config-dir", notADir, "log", "tail")
	assert.Error(t, err)
	var invalid exitConfigInvalid
	assert.ErrorAs(t, err, &invalid)
}
