package cibpd

import "errors"

// Status kinds surfaced by the dispatcher and the document primitives.
// Callers distinguish them with errors.Is.
var (
	// ErrPermissionDenied reports a role mismatch for the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument reports a malformed handshake or a request for
	// an operation retained only for protocol compatibility.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrProtocol reports a missing required payload or field.
	ErrProtocol = errors.New("protocol violation")

	// ErrNotConnected reports a failed send to a peer.
	ErrNotConnected = errors.New("not connected")

	// ErrSchemaUnchanged reports that an upgrade found nothing newer to
	// move to. Informational, not a failure.
	ErrSchemaUnchanged = errors.New("schema is already the latest available")

	// ErrDiffResync reports a diff that cannot be applied until a full
	// resync completes.
	ErrDiffResync = errors.New("update diff requires a full refresh")

	// ErrDiffFailed reports a terminally failed diff application.
	ErrDiffFailed = errors.New("application of update diff failed")

	// ErrOldData reports a replacement older than the existing document.
	ErrOldData = errors.New("update was older than existing configuration")

	// ErrNoSuchOperation reports an unknown operation name.
	ErrNoSuchOperation = errors.New("no such operation")
)

// Numeric result codes, used when a status has to travel inside an
// envelope (e.g. an upgrade rejection relayed back to the originator).
const (
	StatusOK               = 0
	StatusPermissionDenied = -1
	StatusInvalidArgument  = -2
	StatusProtocol         = -3
	StatusNotConnected     = -4
	StatusSchemaUnchanged  = -5
	StatusDiffResync       = -6
	StatusDiffFailed       = -7
	StatusOldData          = -8
	StatusNoSuchOperation  = -9
	StatusOther            = -100
)

var statusOf = []struct {
	err  error
	code int
}{
	{ErrPermissionDenied, StatusPermissionDenied},
	{ErrInvalidArgument, StatusInvalidArgument},
	{ErrProtocol, StatusProtocol},
	{ErrNotConnected, StatusNotConnected},
	{ErrSchemaUnchanged, StatusSchemaUnchanged},
	{ErrDiffResync, StatusDiffResync},
	{ErrDiffFailed, StatusDiffFailed},
	{ErrOldData, StatusOldData},
	{ErrNoSuchOperation, StatusNoSuchOperation},
}

// StatusCode maps a status kind to its wire code.
func StatusCode(err error) int {
	if err == nil {
		return StatusOK
	}
	for _, s := range statusOf {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return StatusOther
}

// StatusError maps a wire code back to its status kind. Unknown codes
// read as a generic protocol violation.
func StatusError(code int) error {
	if code == StatusOK {
		return nil
	}
	for _, s := range statusOf {
		if s.code == code {
			return s.err
		}
	}
	return ErrProtocol
}
