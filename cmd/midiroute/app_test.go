package main

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midiflow/router/internal/config"
	"github.com/midiflow/router/internal/types"
)

func TestNewApp_BuildsFromEmptyConfigDir(t *testing.T) {
	dir := t.TempDir()
	v := config.NewViper()

	a, err := newApp(dir, v, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	assert.Empty(t, a.matrix.Snapshot())
}

func TestNewApp_ConfigEditLiveReloadsRoutes(t *testing.T) {
	dir := t.TempDir()
	store := config.NewStore(dir)
	cfg, err := store.LoadAppConfig()
	require.NoError(t, err)

	a, err := newApp(dir, config.NewViper(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	require.Empty(t, a.matrix.Snapshot())

	cfg.Routes = []config.RouteDoc{{
		SourceEndpointID: "hw:in1",
		TargetEndpointID: "hw:out1",
	}}
	require.NoError(t, store.SaveAppConfig(cfg))

	require.Eventually(t, func() bool {
		return len(a.matrix.Snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond, "route edit on disk never reached the live matrix")

	snap := a.matrix.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "hw:in1", string(snap[0].Source))
	assert.Equal(t, "hw:out1", string(snap[0].Target))
}

func TestNewApp_SysExOverrideFlagsThroughToSession(t *testing.T) {
	dir := t.TempDir()
	v := viper.New()
	v.Set("sysExMaxBytes", 8)

	a, err := newApp(dir, v, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	assert.Equal(t, 8, a.overrides.SysExMaxBytes)

	var got types.MidiPacket
	a.session.OnInbound(func(p types.MidiPacket) { got = p })
	sysex := append([]byte{0xF0}, make([]byte, 16)...)
	a.native.Inject("hw:in1", append(sysex, 0xF7), time.Now())
	assert.Equal(t, types.SysEx, got.MessageType)
	assert.Len(t, got.Data, 8)
}
