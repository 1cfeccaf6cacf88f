package types

import "errors"

// Sentinel error kinds, per spec.md §7. Callers branch on these with
// errors.Is, never by matching message text.
var (
	// ErrInvalidRoute is returned when a route's source/target/filter is
	// rejected by RouteMatrix.upsert.
	ErrInvalidRoute = errors.New("midiflow: invalid route")
	// ErrInvalidFilter is returned when a RouteFilter's channel set falls
	// outside [1..16].
	ErrInvalidFilter = errors.New("midiflow: invalid filter")
	// ErrPortUnavailable is returned by a PortProvider when a port cannot
	// be opened; transient, retried on the next reconciliation pass.
	ErrPortUnavailable = errors.New("midiflow: port unavailable")
	// ErrPortClosed is returned by a PortProvider.Send against a closed
	// handle; MidiSession.Send returns it wrapped, and the routing worker
	// records it as an ERROR log entry.
	ErrPortClosed = errors.New("midiflow: port closed")
	// ErrPersistenceFailed is returned when the config collaborator fails
	// to durably write a catalog or matrix mutation.
	ErrPersistenceFailed = errors.New("midiflow: persistence failed")
	// ErrConfigCorrupt is returned when a persisted document fails to
	// parse and backing up the corrupt file also fails. When the backup
	// succeeds the Store substitutes defaults and returns no error.
	ErrConfigCorrupt = errors.New("midiflow: config corrupt")
	// ErrBackendFault is a catastrophic PortProvider failure that moves
	// the session to Faulted.
	ErrBackendFault = errors.New("midiflow: backend fault")
	// ErrCatalogClosed is returned by EndpointCatalog mutators once the
	// catalog has been closed, e.g. during engine shutdown.
	ErrCatalogClosed = errors.New("midiflow: catalog closed")
)
