package core

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/thinkermao/cibsync/cib/core/peer"
	"github.com/thinkermao/cibsync/cib/document"
	"github.com/thinkermao/cibsync/cib/proto"
)

// requestResync asks one peer (or all, when host is empty) for a full
// replace of our document. Fire-and-forget: a failed send is logged
// and otherwise left to the retry cap to heal.
func (c *Core) requestResync(host string) {
	target := "all peers"
	if host != "" {
		target = host
	}
	log.Infof("%s requesting re-sync from %s", c.name, target)
	c.syncInProgress = 1

	syncMe := &cibpd.Request{
		Type:          cibpd.TypeCIB,
		Op:            cibpd.OpSyncOne,
		DelegatedFrom: c.name,
	}

	var node *peer.Node
	if host != "" {
		node = c.callback.LookupPeer(host)
	}
	if !c.callback.Send(node, syncMe) {
		log.Warnf("%s could not send re-sync request to %s", c.name, target)
	}
}

// syncDocument derives a full replace request from the inbound sync
// request (allow-listed fields only), tags it as a global update and
// sends it to the requesting host, or to all peers.
func (c *Core) syncDocument(req *cibpd.Request, existing *cibpd.Document, all bool) error {
	host := req.Src

	if existing == nil {
		return fmt.Errorf("%w: no document to sync", cibpd.ErrInvalidArgument)
	}
	if !all && host == "" {
		return fmt.Errorf("%w: sync-to-one request names no host", cibpd.ErrInvalidArgument)
	}

	if all {
		log.Debugf("%s syncing document to all peers", c.name)
	} else {
		log.Debugf("%s syncing document to %s", c.name, host)
	}

	replace := cibpd.CopyRequest(req)
	if host != "" {
		replace.IsReplyTo = host
	}
	if all {
		replace.Host = ""
	}

	replace.Op = cibpd.OpReplace
	replace.OriginalOp = req.Op
	replace.GlobalUpdate = true
	replace.FeatureSet = cibpd.FeatureSet
	replace.Digest = document.VersionedDigest(existing)
	replace.Doc = document.Clone(existing)

	var node *peer.Node
	if !all {
		node = c.callback.LookupPeer(host)
		if node == nil {
			return fmt.Errorf("%w: peer %s is gone", cibpd.ErrNotConnected, host)
		}
	}
	if !c.callback.Send(node, replace) {
		return cibpd.ErrNotConnected
	}
	return nil
}

// transactionSource renders who a transaction is attributed to.
func transactionSource(client *Client, origin string) string {
	if client != nil {
		name := client.Name
		if name == "" {
			name = client.ID
		}
		if origin != "" {
			return fmt.Sprintf("client %s on %s", name, origin)
		}
		return fmt.Sprintf("client %s", name)
	}
	if origin != "" {
		return fmt.Sprintf("peer %s", origin)
	}
	return "unknown source"
}
