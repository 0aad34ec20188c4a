package sync

import "errors"

var (
	// ErrForbidden is returned when a caller requests a mutation outside
	// their authorization scope. No local or remote state changed.
	ErrForbidden = errors.New("mutation forbidden")

	// ErrRemoteRejected is returned when the remote write failed after the
	// optimistic local update was applied. The optimistic update has been
	// rolled back by the time the caller sees this error.
	ErrRemoteRejected = errors.New("remote write rejected")

	// ErrBusy is returned when a mutation is requested for a task that
	// already has a mutation in flight from this client. No state changed.
	ErrBusy = errors.New("mutation already in flight for task")

	// ErrEngineClosed is returned for operations against a closed engine.
	ErrEngineClosed = errors.New("sync engine closed")
)
