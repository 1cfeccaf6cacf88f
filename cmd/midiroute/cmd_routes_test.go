package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midiflow/router/internal/catalog"
	"github.com/midiflow/router/internal/config"
	"github.com/midiflow/router/internal/port"
)

// runCmd executes rootCmd and returns what it wrote to stdout. Command
// bodies print with fmt.Println rather than cmd.Println, so capturing
// output means swapping os.Stdout itself, not cobra's SetOut.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	rootCmd.SetArgs(args)
	runErr := rootCmd.Execute()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String(), runErr
}

func TestRoutesAddListRm(t *testing.T) {
	dir := t.TempDir()

	_, err := runCmd(t, "--config-dir", dir, "routes", "add", "hw:in1", "hw:out1")
	require.NoError(t, err)

	out, err := runCmd(t, "--config-dir", dir, "routes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "hw:in1")
	assert.Contains(t, out, "hw:out1")

	store := config.NewStore(dir)
	cfg, err := store.LoadAppConfig()
	require.NoError(t, err)
	routes, err := cfg.ActiveRoutes()
	require.NoError(t, err)
	require.Len(t, routes, 1)

	_, err = runCmd(t, "--config-dir", dir, "routes", "rm", string(routes[0].ID))
	require.NoError(t, err)

	out, err = runCmd(t, "--config-dir", dir, "routes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no routes configured")
}

func TestRoutesAddRejectsUnknownMessageType(t *testing.T) {
	dir := t.TempDir()
	routeAddMessageTypes = "NotAType"
	defer func() { routeAddMessageTypes = "" }()

	_, err := runCmd(t, "--config-dir", dir, "routes", "add", "hw:in1", "hw:out1")
	assert.Error(t, err)
}

func TestEndpointsAddLoopbackListRm(t *testing.T) {
	dir := t.TempDir()

	out, err := runCmd(t, "--config-dir", dir, "endpoints", "add-loopback", "Test Loop")
	require.NoError(t, err)
	assert.Contains(t, out, "loopback created")

	out, err = runCmd(t, "--config-dir", dir, "endpoints", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Loop")

	store := config.NewStore(dir)
	cat := catalog.New(port.NewStaticHardwareSource(nil), store)
	require.NoError(t, cat.Refresh(context.Background()))
	var id string
	for _, e := range cat.List() {
		if e.Name == "Test Loop" {
			id = string(e.ID)
		}
	}
	require.NotEmpty(t, id)

	_, err = runCmd(t, "--config-dir", dir, "endpoints", "rm", id)
	require.NoError(t, err)
}
