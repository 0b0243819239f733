package core

import (
	"testing"

	"github.com/thinkermao/cibsync/cib/document"
	"github.com/thinkermao/cibsync/cib/proto"
)

func TestCore_processCommitTransaction(t *testing.T) {
	cases := []struct {
		ops      []cibpd.PatchOp
		clientID string
		wantErr  bool
	}{
		// full batch applies
		{[]cibpd.PatchOp{
			{Kind: cibpd.PatchSetAttr, Section: "configuration", Attr: "maintenance-mode", Value: "true"},
			{Kind: cibpd.PatchReplaceSection, Section: "status", Content: &cibpd.Document{Name: "status"}},
		}, "client-1", false},
		// second op fails, nothing of the first survives
		{[]cibpd.PatchOp{
			{Kind: cibpd.PatchSetAttr, Section: "configuration", Attr: "maintenance-mode", Value: "true"},
			{Kind: cibpd.PatchRemoveSection, Section: "no-such-section"},
		}, "client-1", true},
		// transaction from a peer, no local client
		{[]cibpd.PatchOp{
			{Kind: cibpd.PatchSetAttr, Section: "configuration", Attr: "maintenance-mode", Value: "true"},
		}, "", false},
		// empty batch is a protocol violation
		{nil, "client-1", true},
	}

	for i, test := range cases {
		cb := &appImpl{clients: map[string]*Client{
			"client-1": {ID: "client-1", Name: "crm_shell"},
		}}
		c := makeTestCore("node1", cb, role(RolePrimary))
		doc := makeTestDoc(cibpd.Version{Epoch: 2, NumUpdates: 4}, "conf-3.0")

		var batch *cibpd.Transaction
		if test.ops != nil {
			batch = &cibpd.Transaction{Ops: test.ops}
		}
		req := &cibpd.Request{
			Op:       cibpd.OpCommitTransaction,
			Src:      "node2",
			ClientID: test.clientID,
			Batch:    batch,
		}

		result, _, err := c.Handle(cibpd.OpCommitTransaction, 0, "", req, doc)
		if test.wantErr {
			if err == nil {
				t.Fatalf("#%d: want failure, get success", i)
			}
			if result != nil {
				t.Fatalf("#%d: failed commit must discard the working copy", i)
			}
			if doc.Children[0].Attrs["maintenance-mode"] != "" {
				t.Fatalf("#%d: failed commit must not leak into the input", i)
			}
			continue
		}

		if err != nil {
			t.Fatalf("#%d: want success, get: %v", i, err)
		}
		want := cibpd.Version{Epoch: 2, NumUpdates: 5}
		if document.VersionOf(result) != want {
			t.Fatalf("#%d: commit must bump the version once, want: %v, get: %v",
				i, want, document.VersionOf(result))
		}
		section := document.FindSection(result, "configuration")
		if section.Attrs["maintenance-mode"] != "true" {
			t.Fatalf("#%d: batch op missing from result", i)
		}
		// this handler never replicates; propagation is the caller's job
		if len(cb.sent) != 0 {
			t.Fatalf("#%d: commit must not emit messages, sent %d", i, len(cb.sent))
		}
	}
}
