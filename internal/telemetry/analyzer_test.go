package telemetry

import (
	"testing"
	"time"

	"github.com/midiflow/router/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := New(noop.NewMeterProvider())
	require.NoError(t, err)
	return a
}

func TestAnalyzer_RegisterAndSnapshotResets(t *testing.T) {
	a := newTestAnalyzer(t)
	a.Register("hw:in1", 3, 1)
	a.Register("hw:in1", 3, 2)

	snap := a.Snapshot("hw:in1")
	assert.Equal(t, []int{1, 2}, snap.ActiveChannels)
	assert.Greater(t, snap.MessagesPerSecond, 0.0)
	assert.Greater(t, snap.BytesPerSecond, 0.0)

	second := a.Peek("hw:in1")
	assert.Equal(t, 0.0, second.MessagesPerSecond)
	assert.Empty(t, second.ActiveChannels)
}

func TestAnalyzer_PeekDoesNotReset(t *testing.T) {
	a := newTestAnalyzer(t)
	a.Register("hw:in1", 10, 5)

	first := a.Peek("hw:in1")
	second := a.Peek("hw:in1")
	assert.Equal(t, first.ActiveChannels, second.ActiveChannels)
}

func TestAnalyzer_ClampsAndIgnoresOutOfRangeChannel(t *testing.T) {
	a := newTestAnalyzer(t)
	a.Register("hw:in1", -5, 0)
	a.Register("hw:in1", -5, 17)

	snap := a.Snapshot("hw:in1")
	assert.Empty(t, snap.ActiveChannels)
	assert.Equal(t, 0.0, snap.BytesPerSecond)
}

func TestAnalyzer_CrossEndpointIndependence(t *testing.T) {
	a := newTestAnalyzer(t)
	a.Register("hw:in1", 10, 1)
	_ = a.Snapshot("hw:in2") // must not disturb hw:in1's counter

	snap := a.Peek("hw:in1")
	assert.Equal(t, []int{1}, snap.ActiveChannels)
}

func TestAnalyzer_ElapsedFloorsAtOneMillisecond(t *testing.T) {
	a := newTestAnalyzer(t)
	a.now = func() time.Time { return time.Unix(0, 0) }
	a.Register("hw:in1", 10, 1)
	snap := a.Snapshot("hw:in1")
	assert.InDelta(t, 1000.0, snap.MessagesPerSecond, 0.001)
}
