package document

import (
	"errors"
	"testing"

	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/cib/schema"
)

func TestUpgrade(t *testing.T) {
	catalog := schema.Default()

	cases := []struct {
		current string
		target  string
		wantErr error
	}{
		{"conf-1.2", "conf-3.0", nil},
		{"conf-1.2", "conf-2.0", nil},
		// same or older generation is not an upgrade
		{"conf-3.0", "conf-3.0", cibpd.ErrSchemaUnchanged},
		{"conf-3.0", "conf-2.0", cibpd.ErrSchemaUnchanged},
		{"conf-1.2", "conf-99", cibpd.ErrInvalidArgument},
	}

	for i, test := range cases {
		doc := makeDoc(cibpd.Version{Epoch: 3, NumUpdates: 7}, test.current)

		result, err := Upgrade(doc, test.target, catalog)
		if !errors.Is(err, test.wantErr) {
			t.Fatalf("#%d: want err: %v, get: %v", i, test.wantErr, err)
		}
		if test.wantErr != nil {
			if result != nil {
				t.Fatalf("#%d: failed upgrade must not produce a document", i)
			}
			if SchemaOf(doc) != test.current {
				t.Fatalf("#%d: failed upgrade mutated its input", i)
			}
			continue
		}

		if got := SchemaOf(result); got != test.target {
			t.Fatalf("#%d: schema want: %s, get: %s", i, test.target, got)
		}
		want := cibpd.Version{Epoch: 4, NumUpdates: 0}
		if VersionOf(result) != want {
			t.Fatalf("#%d: upgrade must bump epoch and reset updates, want: %v, get: %v",
				i, want, VersionOf(result))
		}
		if SchemaOf(doc) != test.current || VersionOf(doc).NumUpdates != 7 {
			t.Fatalf("#%d: upgrade mutated its input", i)
		}
	}
}

func TestUpgrade_invalidDocument(t *testing.T) {
	catalog := schema.Default()

	doc := makeDoc(cibpd.Version{Epoch: 1}, "conf-1.2")
	doc.Name = "not-a-cib"

	if _, err := Upgrade(doc, "conf-3.0", catalog); err == nil {
		t.Fatalf("upgrade of a malformed document want failure")
	}
	if _, err := Upgrade(nil, "conf-3.0", catalog); !errors.Is(err, cibpd.ErrProtocol) {
		t.Fatalf("nil document want: %v, get: %v", cibpd.ErrProtocol, err)
	}
}
