// Package core implements the replication protocol for the shared
// configuration document: request dispatch, role state, diff
// suppression during resync, the two-phase schema upgrade and the
// atomic transaction commit path.
//
// The core is single-threaded by contract. The host integration layer
// must deliver requests one at a time; handlers never block on the
// network, they hand messages to the application callback and return.
// Replies re-enter as independent requests on a later dispatch cycle.
package core

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/thinkermao/cibsync/cib/core/conf"
	"github.com/thinkermao/cibsync/cib/core/peer"
	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/cib/schema"
	"github.com/thinkermao/cibsync/utils"
	"github.com/thinkermao/cibsync/utils/pd"
)

// NodeApplication is what the core needs from its host: message
// delivery, peer resolution, local client lookup and termination.
type NodeApplication interface {
	// Send delivers msg to one peer, or to all peers when to is nil.
	// Fire-and-forget; the result only reports whether the message
	// was handed to the cluster layer.
	Send(to *peer.Node, msg *cibpd.Request) bool

	// LookupPeer resolves a node name, nil when unknown.
	LookupPeer(name string) *peer.Node

	// FindClient resolves a local client by id, nil when the request
	// originated from a peer rather than a direct client.
	FindClient(id string) *Client

	// Terminate performs the local graceful shutdown. Called only
	// after a verified shutdown handshake.
	Terminate()
}

// Client identifies a locally connected client for attribution.
type Client struct {
	ID   string
	Name string
}

type handler func(c *Core, op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (result *cibpd.Document, answer pd.Message, err error)

// Core is the per-node replication state machine. It owns the role
// flag and the sync-in-progress counter; the document itself is owned
// by the host and passed into every dispatch.
type Core struct {
	name string

	role Role

	// Set to 1 when a resync is requested, incremented each time a
	// diff is ignored while waiting, reset to 0 when a full replace
	// is accepted.
	syncInProgress int
	maxDiffRetry   int

	legacy            bool
	shutdownRequested bool

	catalog  *schema.Catalog
	handlers map[string]handler
	callback NodeApplication
}

// MakeCore builds a replication core for the local node.
func MakeCore(config *conf.Config, catalog *schema.Catalog, callback NodeApplication) *Core {
	config.Verify()
	utils.AssertNotNil(catalog, "schema catalog is required")
	utils.AssertNotNil(callback, "node application is required")

	c := new(Core)
	c.name = config.Name
	c.role = RoleSecondary
	if config.Primary {
		c.role = RolePrimary
	}
	c.legacy = config.Legacy
	c.maxDiffRetry = config.MaxDiffRetry
	if c.maxDiffRetry == 0 {
		c.maxDiffRetry = conf.MaxDiffRetry
	}
	c.catalog = catalog
	c.callback = callback

	// The dispatch table is built once; handlers are selected by
	// operation name, never by chained comparisons.
	c.handlers = map[string]handler{
		cibpd.OpShutdownReq:       (*Core).processShutdownReq,
		cibpd.OpNoop:              (*Core).processNoop,
		cibpd.OpPing:              (*Core).processPing,
		cibpd.OpIsPrimary:         (*Core).processReadWrite,
		cibpd.OpPrimary:           (*Core).processReadWrite,
		cibpd.OpSecondary:         (*Core).processReadWrite,
		cibpd.OpSync:              (*Core).processSync,
		cibpd.OpSyncOne:           (*Core).processSyncOne,
		cibpd.OpApplyDiff:         (*Core).processServerDiff,
		cibpd.OpReplace:           (*Core).processServerReplace,
		cibpd.OpUpgrade:           (*Core).processUpgradeServer,
		cibpd.OpDeleteAbsolute:    (*Core).processDeleteAbsolute,
		cibpd.OpCommitTransaction: (*Core).processCommitTransaction,
		cibpd.OpSchemas:           (*Core).processSchemas,
	}

	log.Debugf("%s build replication core [role: %v, legacy: %v, retry cap: %d]",
		c.name, c.role, c.legacy, c.maxDiffRetry)

	return c
}

// Handle dispatches one inbound request to its handler. It returns the
// document to use going forward (possibly unchanged, possibly nil on
// failure), an optional reply payload, and the status of the call.
func (c *Core) Handle(op string, options cibpd.CallOptions, section string,
	req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	h, ok := c.handlers[op]
	if !ok {
		return existing, nil, fmt.Errorf("%w: %q", cibpd.ErrNoSuchOperation, op)
	}
	return h(c, op, options, section, req, existing)
}

// Role returns the current replication role.
func (c *Core) Role() Role {
	return c.role
}

// SyncInProgress reports how many diffs were ignored since the last
// resync request, zero when no resync is outstanding.
func (c *Core) SyncInProgress() int {
	return c.syncInProgress
}

// RequestShutdown marks that the local node asked its peers to shut it
// down, arming the shutdown handshake.
func (c *Core) RequestShutdown() {
	c.shutdownRequested = true
}
