package cib

import (
	"github.com/thinkermao/cibsync/cib/core/peer"
	"github.com/thinkermao/cibsync/cib/document"
	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/utils"
	"github.com/thinkermao/cibsync/utils/pd"
)

// envelope is one queued message; an empty target means broadcast.
type envelope struct {
	to   string
	data []byte
}

// network is a deterministic in-memory cluster. Sends enqueue encoded
// envelopes; deliverAll pumps the queue to completion in FIFO order.
// Every delivery decodes a fresh copy, the same way the wire would, so
// no two nodes ever alias a message. Broadcasts reach every member,
// the sender included.
type network struct {
	names     []string
	nodes     map[string]*Node
	directory *peer.StaticDirectory
	queue     []envelope

	// answers records the non-nil payload Handle returned per node.
	answers map[string][]pd.Message
}

func makeNetwork() *network {
	return &network{
		nodes:     make(map[string]*Node),
		directory: peer.MakeDirectory(),
		answers:   make(map[string][]pd.Message),
	}
}

func (net *network) add(name string, config *Config) *Node {
	config.Name = name
	node := MakeNode(config, &testTransport{net: net, name: name}, net.directory)
	net.directory.Add(peer.MakeNode(name, ""))
	net.nodes[name] = node
	net.names = append(net.names, name)
	return node
}

// send enqueues one request as if from had put it on the wire.
func (net *network) send(from, to string, msg *cibpd.Request) {
	msg.Src = from
	net.queue = append(net.queue, envelope{to: to, data: pd.MustMarshal(msg)})
}

// deliverAll pumps the queue until the cluster goes quiet, including
// any messages the deliveries themselves produce.
func (net *network) deliverAll() {
	for len(net.queue) > 0 {
		env := net.queue[0]
		net.queue = net.queue[1:]

		targets := []string{env.to}
		if env.to == "" {
			targets = net.names
		}
		for _, name := range targets {
			req := &cibpd.Request{}
			pd.MustUnmarshal(req, env.data)
			if answer, _ := net.nodes[name].Handle(req); answer != nil {
				net.answers[name] = append(net.answers[name], answer)
			}
		}
	}
}

// seed installs the same document on every member, bypassing the wire.
func (net *network) seed(doc *cibpd.Document) {
	for _, name := range net.names {
		req := &cibpd.Request{
			Type:         cibpd.TypeCIB,
			Op:           cibpd.OpReplace,
			GlobalUpdate: true,
			Doc:          doc,
		}
		_, err := net.nodes[name].Handle(req)
		utils.Assert(err == nil, "seeding %s failed: %v", name, err)
	}
}

type testTransport struct {
	net  *network
	name string
}

func (tr *testTransport) Send(to string, msg *cibpd.Request) error {
	if _, ok := tr.net.nodes[to]; !ok {
		return cibpd.ErrNotConnected
	}
	tr.net.queue = append(tr.net.queue, envelope{to: to, data: pd.MustMarshal(msg)})
	return nil
}

func (tr *testTransport) Broadcast(msg *cibpd.Request) error {
	tr.net.queue = append(tr.net.queue, envelope{data: pd.MustMarshal(msg)})
	return nil
}

func makeClusterDoc(version cibpd.Version, schemaName string) *cibpd.Document {
	doc := document.New(schemaName)
	document.SetVersion(doc, version)
	doc.Children = append(doc.Children, &cibpd.Document{
		Name:  "configuration",
		Attrs: map[string]string{"cluster-name": "test"},
	})
	return doc
}
