// Package handoff carries the negotiated callback port and the received authorization
// code from the callback listener to the orchestrator.
//
// Two records exist per attempt. The listener is the only writer of each; the
// orchestrator reads them and erases both when the attempt ends. MemoryStore serves the
// common case where both run in one process. FileStore serves a listener running in a
// separate process.
package handoff

import (
	"context"
	"errors"
)

// ErrWaitTimeout is returned when a record does not appear within the configured ceiling.
var ErrWaitTimeout = errors.New("handoff: timed out waiting for record")

// Store is the two-slot handoff between listener and orchestrator.
// Each write atomically replaces one record; last write wins.
type Store interface {
	// WritePort publishes the port the listener is bound to.
	WritePort(ctx context.Context, port int) error
	// WriteCode publishes the authorization code received on the callback.
	WriteCode(ctx context.Context, code string) error
	// Port returns the published port, if any.
	Port(ctx context.Context) (int, bool, error)
	// Code returns the published code, if any.
	Code(ctx context.Context) (string, bool, error)
	// Erase removes both records. Erasing absent records is not an error.
	Erase(ctx context.Context) error
}

// Notifier is implemented by stores that can wake waiters as soon as a record changes.
type Notifier interface {
	// Changed returns a channel that is closed on the next write after the call.
	Changed() <-chan struct{}
}
