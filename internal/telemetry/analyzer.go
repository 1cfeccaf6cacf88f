// Package telemetry implements TrafficAnalyzer: per-endpoint sliding
// traffic counters, snapshottable on demand (spec.md §4.8). Counters are
// plain mutex-guarded structs (the spec's exact reset-on-snapshot
// semantics need precise synchronous control an async OTel callback
// can't give); those counters are additionally surfaced as OpenTelemetry
// observable gauges, the natural home in the teacher's dependency stack
// for "traffic telemetry" (go.opentelemetry.io/otel/sdk/metric).
package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/midiflow/router/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/midiflow/router/internal/telemetry"

// counterState accumulates traffic for one endpoint since windowStart.
// Protected by its own mutex so endpoints never contend with each other,
// per spec.md §4.8 "cross-endpoint independence".
type counterState struct {
	mu             sync.Mutex
	messageCount   int64
	byteCount      int64
	activeChannels map[int]struct{}
	windowStart    time.Time
}

func newCounterState(now time.Time) *counterState {
	return &counterState{activeChannels: make(map[int]struct{}), windowStart: now}
}

// Analyzer tracks traffic counters for every endpoint it has observed.
type Analyzer struct {
	mapMu    sync.RWMutex
	counters map[string]*counterState
	now      func() time.Time

	msgGauge  metric.Float64ObservableGauge
	byteGauge metric.Float64ObservableGauge
}

// New returns an Analyzer that additionally registers OpenTelemetry
// observable gauges ("midiflow.traffic.messages_per_second" and
// "midiflow.traffic.bytes_per_second") against mp, reporting the current
// peek() value for every endpoint observed so far on each collection.
func New(mp metric.MeterProvider) (*Analyzer, error) {
	a := &Analyzer{counters: make(map[string]*counterState), now: time.Now}

	meter := mp.Meter(meterName)

	msgGauge, err := meter.Float64ObservableGauge(
		"midiflow.traffic.messages_per_second",
		metric.WithDescription("Per-endpoint inbound+outbound MIDI message rate"),
	)
	if err != nil {
		return nil, err
	}
	byteGauge, err := meter.Float64ObservableGauge(
		"midiflow.traffic.bytes_per_second",
		metric.WithDescription("Per-endpoint MIDI byte throughput"),
	)
	if err != nil {
		return nil, err
	}
	a.msgGauge = msgGauge
	a.byteGauge = byteGauge

	_, err = meter.RegisterCallback(a.observe, msgGauge, byteGauge)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Analyzer) observe(_ context.Context, o metric.Observer) error {
	a.mapMu.RLock()
	defer a.mapMu.RUnlock()
	for key, cs := range a.counters {
		snap := peekState(cs, a.now())
		attrs := metric.WithAttributes(attribute.String("endpoint_id", key))
		o.ObserveFloat64(a.msgGauge, snap.MessagesPerSecond, attrs)
		o.ObserveFloat64(a.byteGauge, snap.BytesPerSecond, attrs)
	}
	return nil
}

func (a *Analyzer) stateFor(id types.EndpointId) *counterState {
	key := id.Normalize()

	a.mapMu.RLock()
	cs, ok := a.counters[key]
	a.mapMu.RUnlock()
	if ok {
		return cs
	}

	a.mapMu.Lock()
	defer a.mapMu.Unlock()
	if cs, ok := a.counters[key]; ok {
		return cs
	}
	cs = newCounterState(a.now())
	a.counters[key] = cs
	return cs
}

// Register records byteCount bytes of traffic on a message for endpointID,
// on the given channel. byteCount is clamped to >= 0; channel is recorded
// only when it falls in [1..16].
func (a *Analyzer) Register(endpointID types.EndpointId, byteCount int, channel int) {
	if byteCount < 0 {
		byteCount = 0
	}
	cs := a.stateFor(endpointID)

	cs.mu.Lock()
	cs.messageCount++
	cs.byteCount += int64(byteCount)
	if channel >= 1 && channel <= 16 {
		cs.activeChannels[channel] = struct{}{}
	}
	cs.mu.Unlock()
}

// Snapshot atomically reads and resets the counter for endpointID.
func (a *Analyzer) Snapshot(endpointID types.EndpointId) types.TrafficSnapshot {
	cs := a.stateFor(endpointID)
	now := a.now()

	cs.mu.Lock()
	defer cs.mu.Unlock()
	snap := computeSnapshot(endpointID, cs, now)
	cs.messageCount = 0
	cs.byteCount = 0
	cs.activeChannels = make(map[int]struct{})
	cs.windowStart = now
	return snap
}

// Peek computes the same snapshot as Snapshot without resetting state.
func (a *Analyzer) Peek(endpointID types.EndpointId) types.TrafficSnapshot {
	cs := a.stateFor(endpointID)
	snap := peekState(cs, a.now())
	snap.EndpointID = endpointID
	return snap
}

func peekState(cs *counterState, now time.Time) types.TrafficSnapshot {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return computeSnapshot("", cs, now)
}

// computeSnapshot must be called with cs.mu held.
func computeSnapshot(endpointID types.EndpointId, cs *counterState, now time.Time) types.TrafficSnapshot {
	elapsed := now.Sub(cs.windowStart)
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}
	seconds := elapsed.Seconds()

	channels := make([]int, 0, len(cs.activeChannels))
	for c := range cs.activeChannels {
		channels = append(channels, c)
	}
	sort.Ints(channels)

	return types.TrafficSnapshot{
		EndpointID:        endpointID,
		MessagesPerSecond: float64(cs.messageCount) / seconds,
		BytesPerSecond:    float64(cs.byteCount) / seconds,
		ActiveChannels:    channels,
		CapturedAt:        now,
	}
}
