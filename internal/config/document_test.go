package config

import (
	"testing"

	"github.com/midiflow/router/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteDoc_UnknownMessageTypeIsRejected(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Routes = []RouteDoc{{SourceEndpointID: "a", TargetEndpointID: "b", MessageTypes: []string{"Bogus"}}}

	_, err := cfg.ActiveRoutes()
	assert.ErrorIs(t, err, types.ErrInvalidRoute)
}

func TestFromRouteDefinition_RoundTrips(t *testing.T) {
	filter, err := types.NewRouteFilter([]int{3}, []types.MessageType{types.NoteOn})
	require.NoError(t, err)
	r := types.RouteDefinition{ID: "r1", Source: "hw:in", Target: "hw:out", Enabled: true, Filter: filter}

	doc := FromRouteDefinition(r)
	assert.Equal(t, "r1", doc.ID)
	assert.Equal(t, []int{3}, doc.Channels)
	assert.Equal(t, []string{"NoteOn"}, doc.MessageTypes)

	back, err := doc.toRouteDefinition()
	require.NoError(t, err)
	assert.Equal(t, r.ID, back.ID)
	assert.True(t, back.Filter.Allows(3, types.NoteOn))
	assert.False(t, back.Filter.Allows(4, types.NoteOn))
}
