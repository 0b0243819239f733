package core

import (
	"github.com/thinkermao/cibsync/cib/core/conf"
	"github.com/thinkermao/cibsync/cib/core/peer"
	"github.com/thinkermao/cibsync/cib/document"
	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/cib/schema"
)

// appImpl records what the core asked its host to do.
type appImpl struct {
	sendCB     func(to *peer.Node, msg *cibpd.Request) bool
	sent       []*cibpd.Request
	sentTo     []*peer.Node
	peers      map[string]*peer.Node
	clients    map[string]*Client
	terminated bool
}

func (a *appImpl) Send(to *peer.Node, msg *cibpd.Request) bool {
	a.sent = append(a.sent, msg)
	a.sentTo = append(a.sentTo, to)
	if a.sendCB != nil {
		return a.sendCB(to, msg)
	}
	return true
}

func (a *appImpl) LookupPeer(name string) *peer.Node {
	return a.peers[name]
}

func (a *appImpl) FindClient(id string) *Client {
	return a.clients[id]
}

func (a *appImpl) Terminate() {
	a.terminated = true
}

type coreOpt func(c *Core)

func role(r Role) coreOpt {
	return func(c *Core) {
		c.role = r
	}
}

func syncing(count int) coreOpt {
	return func(c *Core) {
		c.syncInProgress = count
	}
}

func legacy() coreOpt {
	return func(c *Core) {
		c.legacy = true
	}
}

func shutdownRequested() coreOpt {
	return func(c *Core) {
		c.shutdownRequested = true
	}
}

func makeTestCore(name string, callback *appImpl, opts ...coreOpt) *Core {
	if callback.peers == nil {
		callback.peers = make(map[string]*peer.Node)
	}
	if callback.clients == nil {
		callback.clients = make(map[string]*Client)
	}

	config := conf.Config{Name: name}
	c := MakeCore(&config, schema.Default(), callback)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// makeTestDoc builds a document with one settable section.
func makeTestDoc(version cibpd.Version, schemaName string) *cibpd.Document {
	doc := document.New(schemaName)
	document.SetVersion(doc, version)
	doc.Children = append(doc.Children, &cibpd.Document{
		Name:  "configuration",
		Attrs: map[string]string{"cluster-name": "test"},
	})
	return doc
}

// matchingDiff builds a diff that applies cleanly on top of doc.
func matchingDiff(doc *cibpd.Document) *cibpd.Diff {
	del := document.VersionOf(doc)
	add := del
	add.NumUpdates++
	return &cibpd.Diff{
		Del: del,
		Add: add,
		Ops: []cibpd.PatchOp{{
			Kind:    cibpd.PatchSetAttr,
			Section: "configuration",
			Attr:    "stonith-enabled",
			Value:   "true",
		}},
	}
}

// staleDiff builds a diff whose from-version does not match doc.
func staleDiff(doc *cibpd.Document) *cibpd.Diff {
	del := document.VersionOf(doc)
	del.NumUpdates += 7
	add := del
	add.NumUpdates++
	return &cibpd.Diff{Del: del, Add: add}
}
