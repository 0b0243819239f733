// Package cib ties the replication core to a transport, a peer
// directory and a local client registry, and serializes request
// dispatch so the core's single-writer invariant holds.
package cib

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/thinkermao/cibsync/cib/core"
	"github.com/thinkermao/cibsync/cib/core/conf"
	"github.com/thinkermao/cibsync/cib/core/peer"
	"github.com/thinkermao/cibsync/cib/document"
	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/cib/schema"
	"github.com/thinkermao/cibsync/utils/pd"
)

// Config describes one cluster node.
type Config struct {
	// Name is the cluster-unique node name.
	Name string

	// Primary is the externally assigned initial role.
	Primary bool

	// Legacy selects the compatibility protocol variant.
	Legacy bool

	// MaxDiffRetry overrides the diff suppression cap; zero selects
	// the default.
	MaxDiffRetry int

	// Schema names the initial validation schema; empty selects the
	// latest known generation.
	Schema string

	// OnShutdown runs after a verified shutdown handshake.
	OnShutdown func()

	// OnClientResult relays an asynchronous result (e.g. an upgrade
	// rejection) back to a local client.
	OnClientResult func(clientID, callID string, rc int)
}

// Node is one cluster member. Inbound requests are processed one at a
// time to completion; handlers hand outbound messages to the transport
// and return, so there is no cross-request lock contention.
type Node struct {
	mutex sync.Mutex

	name      string
	core      *core.Core
	doc       *cibpd.Document
	catalog   *schema.Catalog
	transport Transporter
	directory peer.Directory

	clients map[string]*core.Client

	terminate      sync.Once
	onShutdown     func()
	onClientResult func(clientID, callID string, rc int)
}

// MakeNode builds a node around the given transport and directory.
func MakeNode(config *Config, transport Transporter, directory peer.Directory) *Node {
	catalog := schema.Default()

	schemaName := config.Schema
	if schemaName == "" {
		schemaName = catalog.Latest().Name
	}

	node := &Node{
		name:           config.Name,
		doc:            document.New(schemaName),
		catalog:        catalog,
		transport:      transport,
		directory:      directory,
		clients:        make(map[string]*core.Client),
		onShutdown:     config.OnShutdown,
		onClientResult: config.OnClientResult,
	}

	coreConfig := conf.Config{
		Name:         config.Name,
		Primary:      config.Primary,
		Legacy:       config.Legacy,
		MaxDiffRetry: config.MaxDiffRetry,
	}
	node.core = core.MakeCore(&coreConfig, catalog, node)

	return node
}

// Handle processes one inbound request to completion and returns the
// reply payload, if any, together with the call status. Answers for
// remote requesters are also sent back through the transport as
// independent reply messages.
func (n *Node) Handle(req *cibpd.Request) (pd.Message, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	// Replies are logical links back to an earlier request of ours.
	// Only replace (resync answer) and shutdown (handshake ack) flow
	// into handlers; the rest are consumed here.
	if req.IsReply() {
		switch req.Op {
		case cibpd.OpReplace, cibpd.OpShutdownReq:
			// dispatched below

		case cibpd.OpUpgrade:
			if req.SchemaMax != "" {
				break // broadcast order, dispatched below
			}
			// Carries a result for one of our local clients.
			if n.onClientResult != nil {
				n.onClientResult(req.ClientID, req.CallID, req.UpgradeRC)
			}
			return nil, nil

		case cibpd.OpPing:
			n.checkPingReply(req)
			return req.Ping, nil

		default:
			return nil, nil
		}
	}

	// Resync requests are answered by the holder of the authoritative
	// copy. Secondaries stay quiet unless explicitly addressed, so a
	// broadcast sync request yields one replace, not a storm.
	if (req.Op == cibpd.OpSync || req.Op == cibpd.OpSyncOne) && !req.IsReply() {
		if !n.core.Role().IsPrimary() && req.Host != n.name {
			log.Debugf("%s ignoring %q from %s while secondary", n.name, req.Op, req.Src)
			return nil, nil
		}
	}

	result, answer, err := n.core.Handle(req.Op, req.CallOptions, req.Section, req, n.doc)

	if err == nil && result != nil {
		n.doc = result
	}

	// A committed transaction is activated locally above and then
	// propagated through the ordinary sync path.
	if err == nil && req.Op == cibpd.OpCommitTransaction {
		n.propagate(req)
	}

	// A bare shutdown request is acknowledged so the requester's
	// handshake can complete.
	if err == nil && req.Op == cibpd.OpShutdownReq && !req.IsReply() &&
		req.Src != "" && req.Src != n.name {
		ack := &cibpd.Request{
			Type:      cibpd.TypeCIB,
			Op:        cibpd.OpShutdownReq,
			IsReplyTo: req.Src,
			Host:      req.Src,
			Src:       n.name,
		}
		if sendErr := n.transport.Send(req.Src, ack); sendErr != nil {
			log.Warnf("%s could not acknowledge shutdown of %s: %v", n.name, req.Src, sendErr)
		}
	}

	if answer != nil && req.Src != "" && req.Src != n.name && !req.IsReply() {
		n.reply(req, answer, err)
	}

	return answer, err
}

// checkPingReply compares a peer's reported digest with ours so
// divergence shows up in the logs before it matters.
func (n *Node) checkPingReply(req *cibpd.Request) {
	if req.Ping == nil {
		log.Warnf("%s ping reply from %s carries no payload", n.name, req.Src)
		return
	}
	digest := document.VersionedDigest(n.doc)
	if digest != req.Ping.Digest {
		log.Warnf("%s digest of %s differs: local %s %s, remote %s %s",
			n.name, req.Src, document.VersionOf(n.doc), digest,
			document.VersionOf(req.Ping.Doc), req.Ping.Digest)
		return
	}
	log.Debugf("%s digest of %s matches: %s", n.name, req.Src, digest)
}

// propagate broadcasts our current document as a full replace.
func (n *Node) propagate(req *cibpd.Request) {
	syncReq := &cibpd.Request{
		Type:        cibpd.TypeCIB,
		Op:          cibpd.OpSync,
		Src:         n.name,
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		CallID:      req.CallID,
		CallOptions: req.CallOptions,
	}
	if _, _, err := n.core.Handle(cibpd.OpSync, syncReq.CallOptions, "", syncReq, n.doc); err != nil {
		log.Warnf("%s could not propagate committed transaction: %v", n.name, err)
	}
}

// reply sends the handler's answer back to the requesting peer.
func (n *Node) reply(req *cibpd.Request, answer pd.Message, err error) {
	reply := &cibpd.Request{
		Type:        cibpd.TypeCIB,
		Op:          req.Op,
		IsReplyTo:   req.Src,
		Host:        req.Src,
		Src:         n.name,
		ClientID:    req.ClientID,
		CallID:      req.CallID,
		CallOptions: req.CallOptions,
		ResultCode:  cibpd.StatusCode(err),
	}
	switch payload := answer.(type) {
	case *cibpd.PingResponse:
		reply.Ping = payload
	case *cibpd.SchemaList:
		reply.Schemas = payload
	case *cibpd.Document:
		reply.Doc = payload
	default:
		log.Warnf("%s no wire form for %q answer, dropping reply", n.name, req.Op)
		return
	}
	if sendErr := n.transport.Send(req.Src, reply); sendErr != nil {
		log.Warnf("%s could not answer %q from %s: %v", n.name, req.Op, req.Src, sendErr)
	}
}

// Send implements core.NodeApplication.
func (n *Node) Send(to *peer.Node, msg *cibpd.Request) bool {
	if msg.Src == "" {
		msg.Src = n.name
	}
	var err error
	if to == nil {
		err = n.transport.Broadcast(msg)
	} else {
		err = n.transport.Send(to.Name, msg)
	}
	if err != nil {
		log.Debugf("%s send of %q failed: %v", n.name, msg.Op, err)
		return false
	}
	return true
}

// LookupPeer implements core.NodeApplication.
func (n *Node) LookupPeer(name string) *peer.Node {
	return n.directory.Lookup(name)
}

// FindClient implements core.NodeApplication.
func (n *Node) FindClient(id string) *core.Client {
	return n.clients[id]
}

// Terminate implements core.NodeApplication. Every peer acknowledges
// the shutdown request, but only the first verified ack terminates.
func (n *Node) Terminate() {
	n.terminate.Do(func() {
		log.Infof("%s terminating on verified shutdown handshake", n.name)
		if n.onShutdown != nil {
			n.onShutdown()
		}
	})
}

// RegisterClient adds a local client and returns its handle.
func (n *Node) RegisterClient(name string) *core.Client {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	client := &core.Client{ID: uuid.NewString(), Name: name}
	n.clients[client.ID] = client
	return client
}

// UnregisterClient forgets a local client.
func (n *Node) UnregisterClient(id string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	delete(n.clients, id)
}

// Document returns the current document. Callers must treat it as
// read-only; every store primitive works on copies.
func (n *Node) Document() *cibpd.Document {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	return n.doc
}

// Role returns the current replication role.
func (n *Node) Role() core.Role {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	return n.core.Role()
}

// Ping probes the named peer's digest; the reply arrives as an
// independent inbound message carrying the echoed sequence id.
func (n *Node) Ping(to, seq string) error {
	msg := &cibpd.Request{
		Type:   cibpd.TypeCIB,
		Op:     cibpd.OpPing,
		Src:    n.name,
		Host:   to,
		PingID: seq,
	}
	return n.transport.Send(to, msg)
}

// RequestShutdown asks the peers to confirm our shutdown. Termination
// happens when a peer's acknowledgement completes the handshake.
func (n *Node) RequestShutdown() error {
	n.mutex.Lock()
	n.core.RequestShutdown()
	n.mutex.Unlock()

	msg := &cibpd.Request{
		Type: cibpd.TypeCIB,
		Op:   cibpd.OpShutdownReq,
		Src:  n.name,
	}
	return n.transport.Broadcast(msg)
}
