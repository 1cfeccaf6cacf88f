// Package scenarios wires the endpoint catalog, route matrix/index, port
// providers, session, and worker together the way cmd/midiroute's app does,
// exercising the routing pipeline end to end rather than one component at
// a time.
package scenarios

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midiflow/router/internal/catalog"
	"github.com/midiflow/router/internal/eventlog"
	"github.com/midiflow/router/internal/port"
	"github.com/midiflow/router/internal/routing"
	"github.com/midiflow/router/internal/session"
	"github.com/midiflow/router/internal/types"
	"github.com/midiflow/router/internal/worker"
)

type noopPersister struct{}

func (noopPersister) LoadLoopbacks() ([]types.EndpointDescriptor, error) { return nil, nil }
func (noopPersister) SaveLoopbacks([]types.EndpointDescriptor) error    { return nil }

type noopTelemetry struct{}

func (noopTelemetry) Register(types.EndpointId, int, int) {}

// recordingProvider is a port.Provider that tracks every Send so tests can
// assert on the actual bytes that reached a target endpoint, distinct from
// whatever session.Send's own bookkeeping reports.
type recordingProvider struct {
	mu      sync.Mutex
	open    map[string]types.EndpointId
	sends   []sentPacket
	inbound port.InboundFunc
	failing map[string]bool
}

type sentPacket struct {
	target types.EndpointId
	data   []byte
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{open: make(map[string]types.EndpointId), failing: make(map[string]bool)}
}

type recordingHandle struct{ id types.EndpointId }

func (h recordingHandle) EndpointID() types.EndpointId { return h.id }

func (p *recordingProvider) OpenInput(_ context.Context, id types.EndpointId) (port.Handle, error) {
	p.mu.Lock()
	p.open[id.Normalize()] = id
	p.mu.Unlock()
	return recordingHandle{id}, nil
}

func (p *recordingProvider) OpenOutput(_ context.Context, id types.EndpointId) (port.Handle, error) {
	p.mu.Lock()
	p.open[id.Normalize()] = id
	p.mu.Unlock()
	return recordingHandle{id}, nil
}

func (p *recordingProvider) Send(h port.Handle, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[h.EndpointID().Normalize()] {
		return types.ErrPortClosed
	}
	p.sends = append(p.sends, sentPacket{target: h.EndpointID(), data: append([]byte(nil), data...)})
	return nil
}

// failTarget makes every future Send to id fail with types.ErrPortClosed,
// simulating a backend closing the port out from under the session.
func (p *recordingProvider) failTarget(id types.EndpointId) {
	p.mu.Lock()
	p.failing[id.Normalize()] = true
	p.mu.Unlock()
}

func (p *recordingProvider) Close(h port.Handle) error {
	p.mu.Lock()
	delete(p.open, h.EndpointID().Normalize())
	p.mu.Unlock()
	return nil
}

func (p *recordingProvider) SetInboundHandler(fn port.InboundFunc) {
	p.mu.Lock()
	p.inbound = fn
	p.mu.Unlock()
}

// inject delivers data as if it arrived from the backend on id, the way a
// real callback thread would, exercising the same path session.handleInbound
// decodes packets through.
func (p *recordingProvider) inject(id types.EndpointId, data []byte, arrival time.Time) {
	p.mu.Lock()
	fn := p.inbound
	p.mu.Unlock()
	if fn != nil {
		fn(id, data, arrival)
	}
}

func (p *recordingProvider) snapshot() []sentPacket {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentPacket(nil), p.sends...)
}

// rig bundles one wiring of catalog+matrix+index+session+worker, the same
// shape cmd/midiroute's newApp assembles, minus persistence and telemetry
// export.
type rig struct {
	cat      *catalog.Catalog
	matrix   *routing.Matrix
	index    *routing.Index
	log      *eventlog.Log
	provider *recordingProvider
	sess     *session.Session
	worker   *worker.Worker
}

func newRig(t *testing.T, endpoints []types.EndpointDescriptor, routes ...types.RouteDefinition) *rig {
	t.Helper()

	hw := port.NewStaticHardwareSource(endpoints)
	cat := catalog.New(hw, noopPersister{})

	matrix := routing.NewMatrix()
	matrix.ReplaceAll(routes)
	index := routing.NewIndex()
	index.Rebuild(matrix.Snapshot())
	matrix.OnChanged(func() { index.Rebuild(matrix.Snapshot()) })

	msgLog := eventlog.New(100)
	provider := newRecordingProvider()
	sess := session.New(provider, nil, cat)
	w := worker.New(index, sess, msgLog, noopTelemetry{}, cat, nil)
	sess.OnInbound(w.Enqueue)

	require.NoError(t, sess.Start(context.Background()))
	w.Start()

	return &rig{cat: cat, matrix: matrix, index: index, log: msgLog, provider: provider, sess: sess, worker: w}
}

func (r *rig) stop() {
	r.worker.Stop(context.Background(), time.Second)
	_ = r.sess.Stop(context.Background())
}

// noteOnBytes builds a Note On message for channel (1-16) targeting note.
func noteOnBytes(channel int, note byte) []byte {
	return []byte{byte(0x90 | (channel - 1)), note, 0x64}
}

func TestScenario_BasicRoute(t *testing.T) {
	endpoints := []types.EndpointDescriptor{
		{ID: "hw:in1", Name: "In1", SupportsInput: true},
		{ID: "hw:out1", Name: "Out1", SupportsOutput: true},
	}
	route := types.RouteDefinition{
		ID: "r1", Source: "hw:in1", Target: "hw:out1",
		Enabled: true, Filter: types.AllowAllFilter(),
	}
	r := newRig(t, endpoints, route)

	r.provider.inject("hw:in1", noteOnBytes(1, 60), time.Now())
	r.stop()

	sent := r.provider.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, types.EndpointId("hw:out1"), sent[0].target)
	assert.Equal(t, noteOnBytes(1, 60), sent[0].data)

	entries := r.log.List()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Detail, "IN ")
	assert.Contains(t, entries[1].Detail, "Routed from")
}

func TestScenario_ChannelFilterBlocksMismatch(t *testing.T) {
	endpoints := []types.EndpointDescriptor{
		{ID: "hw:in1", Name: "In1", SupportsInput: true},
		{ID: "hw:out1", Name: "Out1", SupportsOutput: true},
	}
	filter, err := types.NewRouteFilter([]int{2}, nil)
	require.NoError(t, err)
	route := types.RouteDefinition{
		ID: "r1", Source: "hw:in1", Target: "hw:out1",
		Enabled: true, Filter: filter,
	}
	r := newRig(t, endpoints, route)

	r.provider.inject("hw:in1", noteOnBytes(1, 60), time.Now())
	r.stop()

	assert.Empty(t, r.provider.snapshot())
}

func TestScenario_HotReroute(t *testing.T) {
	endpoints := []types.EndpointDescriptor{
		{ID: "hw:in1", Name: "In1", SupportsInput: true},
		{ID: "hw:out1", Name: "Out1", SupportsOutput: true},
		{ID: "hw:out2", Name: "Out2", SupportsOutput: true},
	}
	route := types.RouteDefinition{
		ID: "r1", Source: "hw:in1", Target: "hw:out1",
		Enabled: true, Filter: types.AllowAllFilter(),
	}
	r := newRig(t, endpoints, route)

	r.provider.inject("hw:in1", noteOnBytes(1, 60), time.Now())
	waitFor(t, time.Second, func() bool { return len(r.provider.snapshot()) == 1 })

	r.matrix.ReplaceAll([]types.RouteDefinition{{
		ID: "r1", Source: "hw:in1", Target: "hw:out2",
		Enabled: true, Filter: types.AllowAllFilter(),
	}})

	r.provider.inject("hw:in1", noteOnBytes(1, 61), time.Now())
	r.stop()

	sent := r.provider.snapshot()
	require.Len(t, sent, 2)
	assert.Equal(t, types.EndpointId("hw:out1"), sent[0].target)
	assert.Equal(t, types.EndpointId("hw:out2"), sent[1].target)
}

func TestScenario_LoopbackEchoesAsInbound(t *testing.T) {
	endpoints := []types.EndpointDescriptor{
		{ID: "loop:A", Name: "Loop A", SupportsInput: true, SupportsOutput: true, Kind: types.Loopback, IsUserManaged: true},
	}
	r := newRig(t, endpoints)

	var got []types.MidiPacket
	var mu sync.Mutex
	r.sess.OnInbound(func(p types.MidiPacket) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	before := time.Now()
	outbound := types.MidiPacket{
		SourceEndpointID: "ignored",
		Data:             noteOnBytes(1, 60),
		Channel:          1,
		MessageType:      types.NoteOn,
	}
	err := r.sess.Send(context.Background(), "loop:A", outbound)
	require.NoError(t, err)
	r.stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, types.EndpointId("loop:A"), got[0].SourceEndpointID)
	assert.True(t, got[0].Timestamp.After(before) || got[0].Timestamp.Equal(before))
}

func TestScenario_SendFailureLogsErrorEntry(t *testing.T) {
	endpoints := []types.EndpointDescriptor{
		{ID: "hw:in1", Name: "In1", SupportsInput: true},
		{ID: "hw:out1", Name: "Out1", SupportsOutput: true},
	}
	route := types.RouteDefinition{
		ID: "r1", Source: "hw:in1", Target: "hw:out1",
		Enabled: true, Filter: types.AllowAllFilter(),
	}
	r := newRig(t, endpoints, route)
	r.provider.failTarget("hw:out1")

	r.provider.inject("hw:in1", noteOnBytes(1, 60), time.Now())
	r.stop()

	assert.Empty(t, r.provider.snapshot(), "a failed send must not appear as delivered")

	entries := r.log.List()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Detail, "IN ")
	assert.Contains(t, entries[1].Detail, "ERROR")
}

// waitFor polls cond until it reports true or timeout elapses, failing the
// test on timeout. Needed wherever a packet crosses into the worker's
// asynchronous dispatch queue and the test must observe its effect before
// moving on (e.g. before mutating routes mid-stream).
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}
