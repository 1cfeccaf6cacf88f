// Package config implements the persisted configuration documents
// (spec.md §6.2): the AppConfig route/profile document and the loopback
// endpoint document, both versioned JSON, written tmp-then-rename and
// recovered from corruption by backing up and substituting defaults.
// Grounded on the teacher's internal/configfile.Config load/save shape
// (read-parse-or-migrate, MarshalIndent-then-WriteFile), generalized
// here from a single metadata file to two documents plus schema
// upgrade and corrupt-file recovery.
package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/midiflow/router/internal/eventlog"
	"github.com/midiflow/router/internal/types"
)

// CurrentVersion is written into every freshly created AppConfig.
const CurrentVersion = 1

// DefaultProfileName is used when ActiveProfileName is blank.
const DefaultProfileName = "Default"

// RouteDoc is the on-disk representation of one route.
type RouteDoc struct {
	ID               string   `json:"id,omitempty"`
	SourceEndpointID string   `json:"sourceEndpointId"`
	TargetEndpointID string   `json:"targetEndpointId"`
	Enabled          *bool    `json:"enabled,omitempty"`
	Channels         []int    `json:"channels,omitempty"`
	MessageTypes     []string `json:"messageTypes,omitempty"`
}

// ProfileDoc is a named collection of routes.
type ProfileDoc struct {
	Name   string     `json:"name"`
	Routes []RouteDoc `json:"routes,omitempty"`
}

// AppConfig is the root configuration document (spec.md §6.2).
type AppConfig struct {
	Version           int          `json:"version"`
	ActiveProfileName string       `json:"activeProfileName,omitempty"`
	LogBufferSize     int          `json:"logBufferSize,omitempty"`
	Profiles          []ProfileDoc `json:"profiles,omitempty"`
	// Routes holds the flat route list used when no profile matches
	// ActiveProfileName, preserving single-profile configs that predate
	// the profiles list.
	Routes []RouteDoc `json:"routes,omitempty"`
}

// DefaultAppConfig returns a fresh, empty, current-version document.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Version:           CurrentVersion,
		ActiveProfileName: DefaultProfileName,
		LogBufferSize:     eventlog.DefaultCapacity,
	}
}

// ActiveRoutes resolves the RouteDefinitions for the active profile,
// falling back to the flat Routes list if no profile matches.
func (c *AppConfig) ActiveRoutes() ([]types.RouteDefinition, error) {
	name := c.ActiveProfileName
	if strings.TrimSpace(name) == "" {
		name = DefaultProfileName
	}

	docs := c.Routes
	for _, p := range c.Profiles {
		if p.Name == name {
			docs = p.Routes
			break
		}
	}

	out := make([]types.RouteDefinition, 0, len(docs))
	for _, d := range docs {
		rd, err := d.toRouteDefinition()
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, nil
}

// ClampedLogBufferSize returns LogBufferSize clamped to
// [eventlog.MinCapacity, eventlog.MaxCapacity], substituting the default
// when unset.
func (c *AppConfig) ClampedLogBufferSize() int {
	size := c.LogBufferSize
	if size == 0 {
		size = eventlog.DefaultCapacity
	}
	if size < eventlog.MinCapacity {
		size = eventlog.MinCapacity
	}
	if size > eventlog.MaxCapacity {
		size = eventlog.MaxCapacity
	}
	return size
}

func (d RouteDoc) toRouteDefinition() (types.RouteDefinition, error) {
	source := strings.TrimSpace(d.SourceEndpointID)
	target := strings.TrimSpace(d.TargetEndpointID)
	if source == "" || target == "" {
		return types.RouteDefinition{}, fmt.Errorf("%w: route requires sourceEndpointId and targetEndpointId", types.ErrInvalidRoute)
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}

	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}

	msgTypes := make([]types.MessageType, 0, len(d.MessageTypes))
	for _, s := range d.MessageTypes {
		mt, ok := types.ParseMessageType(s)
		if !ok {
			return types.RouteDefinition{}, fmt.Errorf("%w: unknown message type %q", types.ErrInvalidRoute, s)
		}
		msgTypes = append(msgTypes, mt)
	}

	filter, err := types.NewRouteFilter(d.Channels, msgTypes)
	if err != nil {
		return types.RouteDefinition{}, err
	}

	return types.RouteDefinition{
		ID:      types.RouteId(id),
		Source:  types.EndpointId(source),
		Target:  types.EndpointId(target),
		Enabled: enabled,
		Filter:  filter,
	}, nil
}

// FromRouteDefinition converts a route back to its document form, used
// when persisting a route added by an operator (the `routes add` command).
func FromRouteDefinition(r types.RouteDefinition) RouteDoc {
	enabled := r.Enabled
	types_ := r.Filter.MessageTypes()
	names := make([]string, 0, len(types_))
	for _, t := range types_ {
		names = append(names, t.String())
	}
	return RouteDoc{
		ID:               string(r.ID),
		SourceEndpointID: string(r.Source),
		TargetEndpointID: string(r.Target),
		Enabled:          &enabled,
		Channels:         r.Filter.Channels(),
		MessageTypes:     names,
	}
}
