package cibpd

import "reflect"

// FeatureSet is advertised on ping replies and replace broadcasts so
// peers can tell which protocol features the sender supports.
const FeatureSet = "1.2.0"

// TypeCIB is the message family carried in Request.Type.
const TypeCIB = "cib"

// Operation names understood by the dispatcher.
//
// Request flow:
// - shutdown req:   three-way handshake, reply triggers local termination.
// - noop:           compatibility, always succeeds.
// - ping:           digest + version probe, answered directly.
// - is primary:     role query, never mutates.
// - primary:        promote to read-write.
// - secondary:      demote to read-only (as does any other rw op).
// - sync/sync one:  ask the holder to broadcast (or unicast) a full replace.
// - apply diff:     incremental update, may be suppressed during resync.
// - replace:        full document install, clears any pending resync.
// - upgrade:        two-phase schema negotiation.
// - delete alt:     legacy absolute delete, always rejected.
// - commit transact: atomic batch against a working copy.
// - schemas:        list schema generations newer than the requester's.
const (
	OpShutdownReq       = "cib_shutdown_req"
	OpNoop              = "noop"
	OpPing              = "cib_ping"
	OpIsPrimary         = "cib_is_primary"
	OpPrimary           = "cib_primary"
	OpSecondary         = "cib_secondary"
	OpSync              = "cib_sync"
	OpSyncOne           = "cib_sync_one"
	OpApplyDiff         = "cib_apply_diff"
	OpReplace           = "cib_replace"
	OpUpgrade           = "cib_upgrade"
	OpDeleteAbsolute    = "cib_delete_alt"
	OpCommitTransaction = "cib_commit_transact"
	OpSchemas           = "cib_schemas"
)

// CallOptions is the options bitmask carried with every call.
type CallOptions uint32

const (
	// OptForceDiff marks a diff whose sender expects a full refresh
	// to be requested on failure.
	OptForceDiff CallOptions = 1 << iota
	// OptSyncCall marks a call whose client blocks for the result.
	OptSyncCall
)

// Request is the inbound operation envelope. The transport constructs
// one per received message; exactly one handler consumes it.
type Request struct {
	Type        string
	Op          string
	ClientID    string
	ClientName  string
	CallID      string
	CallOptions CallOptions

	// IsReplyTo names the host this message answers; empty for requests.
	IsReplyTo string
	Section   string
	// Host is the target host for routed calls; empty means broadcast.
	Host string
	// Src is the sending peer, stamped by the transport on receipt.
	Src string

	ResultCode     int
	DelegatedFrom  string
	Object         string
	ObjectType     string
	Timeout        int
	GlobalUpdate   bool
	NotifyType     string
	NotifyActivate bool

	// Payload fields. Never copied into derived messages.
	OriginalOp string
	FeatureSet string
	Digest     string
	PingID     string
	SchemaMax  string
	UpgradeRC  int
	Doc        *Document
	Diff       *Diff
	Batch      *Transaction
	Query      *SchemaQuery
	Ping       *PingResponse
	Schemas    *SchemaList
}

func (r *Request) Reset() { *r = Request{} }

// IsReply reports whether the envelope answers an earlier request.
func (r *Request) IsReply() bool { return r.IsReplyTo != "" }

// requestCopyFields is the declared allow-list of envelope fields that
// survive when a new message is derived from an inbound request.
var requestCopyFields = []string{
	"Type",
	"ClientID",
	"CallOptions",
	"CallID",
	"Op",
	"IsReplyTo",
	"Section",
	"Host",
	"ResultCode",
	"DelegatedFrom",
	"Object",
	"ObjectType",
	"Timeout",
	"GlobalUpdate",
	"ClientName",
	"NotifyType",
	"NotifyActivate",
}

// CopyRequest derives a new envelope from msg, carrying over only the
// allow-listed fields. Payloads never propagate this way.
func CopyRequest(msg *Request) *Request {
	copy := &Request{}

	src := reflect.ValueOf(msg).Elem()
	dst := reflect.ValueOf(copy).Elem()
	for _, field := range requestCopyFields {
		dst.FieldByName(field).Set(src.FieldByName(field))
	}
	return copy
}
