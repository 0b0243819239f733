package cib

import (
	"testing"

	"github.com/thinkermao/cibsync/cib/core"
	"github.com/thinkermao/cibsync/cib/document"
	"github.com/thinkermao/cibsync/cib/proto"
)

func TestCluster_divergedSecondaryResyncs(t *testing.T) {
	net := makeNetwork()
	node1 := net.add("node1", &Config{Primary: true})
	node2 := net.add("node2", &Config{})

	net.seed(makeClusterDoc(cibpd.Version{Epoch: 2}, "conf-3.0"))

	// Move the primary ahead while node2 misses the change.
	ahead := makeClusterDoc(cibpd.Version{Epoch: 3}, "conf-3.0")
	ahead.Children[0].Attrs["cluster-name"] = "renamed"
	if _, err := node1.Handle(&cibpd.Request{
		Type: cibpd.TypeCIB, Op: cibpd.OpReplace, GlobalUpdate: true, Doc: ahead,
	}); err != nil {
		t.Fatalf("installing the primary's document failed: %v", err)
	}

	// The next incremental update is based on a version node2 never saw.
	diff := &cibpd.Diff{
		Del: cibpd.Version{Epoch: 3},
		Add: cibpd.Version{Epoch: 3, NumUpdates: 1},
		Ops: []cibpd.PatchOp{{
			Kind: cibpd.PatchSetAttr, Section: "configuration",
			Attr: "stonith-enabled", Value: "true",
		}},
	}
	if _, err := node1.Handle(&cibpd.Request{Op: cibpd.OpApplyDiff, Diff: diff}); err != nil {
		t.Fatalf("primary could not apply its own diff: %v", err)
	}
	net.send("node1", "node2", &cibpd.Request{
		Type: cibpd.TypeCIB, Op: cibpd.OpApplyDiff, Diff: diff,
	})
	net.deliverAll()

	// node2 detected the divergence, asked for a resync and received
	// the primary's full document.
	want := cibpd.Version{Epoch: 3, NumUpdates: 1}
	if got := document.VersionOf(node2.Document()); got != want {
		t.Fatalf("node2 version want: %v, get: %v", want, got)
	}
	if document.VersionedDigest(node1.Document()) != document.VersionedDigest(node2.Document()) {
		t.Fatalf("cluster did not converge after resync")
	}

	// The resync condition is cleared: the next diff is not suppressed.
	diff2 := &cibpd.Diff{
		Del: cibpd.Version{Epoch: 3, NumUpdates: 1},
		Add: cibpd.Version{Epoch: 3, NumUpdates: 2},
		Ops: []cibpd.PatchOp{{
			Kind: cibpd.PatchSetAttr, Section: "configuration",
			Attr: "maintenance-mode", Value: "false",
		}},
	}
	if _, err := node1.Handle(&cibpd.Request{Op: cibpd.OpApplyDiff, Diff: diff2}); err != nil {
		t.Fatalf("primary could not apply its own diff: %v", err)
	}
	net.send("node1", "node2", &cibpd.Request{
		Type: cibpd.TypeCIB, Op: cibpd.OpApplyDiff, Diff: diff2,
	})
	net.deliverAll()

	want = cibpd.Version{Epoch: 3, NumUpdates: 2}
	if got := document.VersionOf(node2.Document()); got != want {
		t.Fatalf("node2 must apply the diff after resync, want: %v, get: %v", want, got)
	}
}

func TestCluster_pingEchoesDigest(t *testing.T) {
	net := makeNetwork()
	node1 := net.add("node1", &Config{Primary: true})
	net.add("node2", &Config{})

	net.seed(makeClusterDoc(cibpd.Version{Epoch: 4, NumUpdates: 2}, "conf-3.0"))

	if err := node1.Ping("node2", "42"); err != nil {
		t.Fatalf("ping send failed: %v", err)
	}
	net.deliverAll()

	answers := net.answers["node1"]
	if len(answers) != 1 {
		t.Fatalf("want one ping reply, get: %d", len(answers))
	}
	ping, ok := answers[0].(*cibpd.PingResponse)
	if !ok {
		t.Fatalf("reply want *PingResponse, get: %T", answers[0])
	}
	if ping.PingID != "42" {
		t.Fatalf("reply must echo the sequence id, want: 42, get: %q", ping.PingID)
	}
	if ping.Digest != document.VersionedDigest(node1.Document()) {
		t.Fatalf("peer digest differs on identical documents")
	}
	if ping.FeatureSet != cibpd.FeatureSet {
		t.Fatalf("reply feature set want: %s, get: %q", cibpd.FeatureSet, ping.FeatureSet)
	}
}

func TestCluster_upgradeReachesAllMembers(t *testing.T) {
	net := makeNetwork()
	net.add("node1", &Config{Primary: true, Schema: "conf-1.2"})
	net.add("node2", &Config{Schema: "conf-1.2"})
	net.add("node3", &Config{Schema: "conf-1.2"})

	net.seed(makeClusterDoc(cibpd.Version{Epoch: 2}, "conf-1.2"))

	net.send("node2", "node1", &cibpd.Request{
		Type:     cibpd.TypeCIB,
		Op:       cibpd.OpUpgrade,
		ClientID: "client-9",
		CallID:   "5",
	})
	net.deliverAll()

	want := cibpd.Version{Epoch: 3}
	for _, name := range net.names {
		doc := net.nodes[name].Document()
		if got := document.SchemaOf(doc); got != "conf-3.0" {
			t.Fatalf("%s schema want: conf-3.0, get: %q", name, got)
		}
		if got := document.VersionOf(doc); got != want {
			t.Fatalf("%s version want: %v, get: %v", name, want, got)
		}
	}
}

func TestCluster_upgradeRejectionReachesClient(t *testing.T) {
	var gotClient, gotCall string
	var gotRC, calls int

	net := makeNetwork()
	net.add("node1", &Config{Primary: true})
	net.add("node2", &Config{
		OnClientResult: func(clientID, callID string, rc int) {
			gotClient, gotCall, gotRC = clientID, callID, rc
			calls++
		},
	})

	net.seed(makeClusterDoc(cibpd.Version{Epoch: 2}, "conf-3.0"))

	net.send("node2", "node1", &cibpd.Request{
		Type:     cibpd.TypeCIB,
		Op:       cibpd.OpUpgrade,
		ClientID: "client-9",
		CallID:   "12",
	})
	net.deliverAll()

	if calls != 1 {
		t.Fatalf("want one client notification, get: %d", calls)
	}
	if gotClient != "client-9" || gotCall != "12" {
		t.Fatalf("notification correlation want client-9/12, get: %s/%s", gotClient, gotCall)
	}
	if gotRC != cibpd.StatusSchemaUnchanged {
		t.Fatalf("notification rc want: %d, get: %d", cibpd.StatusSchemaUnchanged, gotRC)
	}
	for _, name := range net.names {
		if got := document.SchemaOf(net.nodes[name].Document()); got != "conf-3.0" {
			t.Fatalf("%s rejected upgrade must not change the schema, get: %q", name, got)
		}
	}
}

func TestCluster_committedTransactionPropagates(t *testing.T) {
	net := makeNetwork()
	node1 := net.add("node1", &Config{Primary: true})
	node2 := net.add("node2", &Config{})

	net.seed(makeClusterDoc(cibpd.Version{Epoch: 2, NumUpdates: 4}, "conf-3.0"))

	client := node1.RegisterClient("crm_shell")
	_, err := node1.Handle(&cibpd.Request{
		Type:     cibpd.TypeCIB,
		Op:       cibpd.OpCommitTransaction,
		ClientID: client.ID,
		Batch: &cibpd.Transaction{Ops: []cibpd.PatchOp{
			{Kind: cibpd.PatchSetAttr, Section: "configuration",
				Attr: "maintenance-mode", Value: "true"},
		}},
	})
	if err != nil {
		t.Fatalf("commit want success, get: %v", err)
	}
	net.deliverAll()

	want := cibpd.Version{Epoch: 2, NumUpdates: 5}
	if got := document.VersionOf(node1.Document()); got != want {
		t.Fatalf("commit must bump the version once, want: %v, get: %v", want, got)
	}
	section := document.FindSection(node2.Document(), "configuration")
	if section == nil || section.Attrs["maintenance-mode"] != "true" {
		t.Fatalf("committed batch did not reach node2: %+v", section)
	}
	if document.VersionedDigest(node1.Document()) != document.VersionedDigest(node2.Document()) {
		t.Fatalf("cluster did not converge after commit")
	}
}

func TestCluster_shutdownHandshake(t *testing.T) {
	shutdowns := 0

	net := makeNetwork()
	net.add("node1", &Config{Primary: true})
	node2 := net.add("node2", &Config{OnShutdown: func() { shutdowns++ }})
	net.add("node3", &Config{})

	net.seed(makeClusterDoc(cibpd.Version{Epoch: 1}, "conf-3.0"))

	if err := node2.RequestShutdown(); err != nil {
		t.Fatalf("shutdown request failed: %v", err)
	}
	net.deliverAll()

	// Both peers acknowledge; termination still happens exactly once.
	if shutdowns != 1 {
		t.Fatalf("want exactly one termination, get: %d", shutdowns)
	}
}

func TestNode_clientRegistry(t *testing.T) {
	net := makeNetwork()
	node1 := net.add("node1", &Config{Primary: true})

	client := node1.RegisterClient("crm_shell")
	if client.ID == "" || client.Name != "crm_shell" {
		t.Fatalf("registered client is malformed: %+v", client)
	}
	if got := node1.FindClient(client.ID); got != client {
		t.Fatalf("client lookup want: %+v, get: %+v", client, got)
	}

	node1.UnregisterClient(client.ID)
	if got := node1.FindClient(client.ID); got != nil {
		t.Fatalf("unregistered client must not resolve, get: %+v", got)
	}
}

func TestNode_roleFollowsReadWriteOps(t *testing.T) {
	net := makeNetwork()
	node1 := net.add("node1", &Config{})

	net.seed(makeClusterDoc(cibpd.Version{Epoch: 1}, "conf-3.0"))

	if node1.Role().IsPrimary() {
		t.Fatalf("node starts secondary unless configured otherwise")
	}

	net.send("node2", "node1", &cibpd.Request{Type: cibpd.TypeCIB, Op: cibpd.OpPrimary})
	net.deliverAll()
	if node1.Role() != core.RolePrimary {
		t.Fatalf("promotion did not take effect")
	}

	net.send("node2", "node1", &cibpd.Request{Type: cibpd.TypeCIB, Op: cibpd.OpSecondary})
	net.deliverAll()
	if node1.Role() != core.RoleSecondary {
		t.Fatalf("demotion did not take effect")
	}
}
