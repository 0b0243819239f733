package cib

import (
	"github.com/thinkermao/cibsync/cib/proto"
)

// Transporter delivers envelopes to cluster members. Implementations
// own reliability and timeouts; the replication core treats every send
// as fire-and-forget.
type Transporter interface {
	// Send delivers msg to the named peer.
	Send(to string, msg *cibpd.Request) error

	// Broadcast delivers msg to every peer.
	Broadcast(msg *cibpd.Request) error
}
