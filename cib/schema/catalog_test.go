package schema

import (
	"testing"

	"github.com/blang/semver/v4"
	"github.com/thinkermao/cibsync/cib/proto"
)

func makeValidDoc() *cibpd.Document {
	return &cibpd.Document{
		Name: cibpd.ElemCIB,
		Attrs: map[string]string{
			cibpd.AttrAdminEpoch:   "0",
			cibpd.AttrEpoch:        "1",
			cibpd.AttrNumUpdates:   "0",
			cibpd.AttrValidateWith: "conf-1.2",
		},
	}
}

func TestCatalog_Latest(t *testing.T) {
	if got := Default().Latest().Name; got != "conf-3.0" {
		t.Fatalf("latest want: conf-3.0, get: %s", got)
	}
}

func TestCatalog_Lookup(t *testing.T) {
	catalog := Default()

	s, ok := catalog.Lookup("conf-2.5")
	if !ok || s.Name != "conf-2.5" {
		t.Fatalf("lookup of known generation failed: %v, %v", s, ok)
	}
	if _, ok := catalog.Lookup("conf-9.9"); ok {
		t.Fatalf("lookup of unknown generation must fail")
	}
}

func TestCatalog_VersionOf(t *testing.T) {
	catalog := Default()

	cases := []struct {
		name string
		want semver.Version
	}{
		{"conf-2.5", semver.MustParse("2.5.0")},
		// not in the catalog, but the name still orders
		{"conf-0.6", semver.MustParse("0.6.0")},
		{"conf-9.9", semver.MustParse("9.9.0")},
		// unversioned names read as the zero version
		{"garbage", semver.Version{}},
		{"", semver.Version{}},
	}

	for i, test := range cases {
		if got := catalog.VersionOf(test.name); !got.EQ(test.want) {
			t.Fatalf("#%d: want: %s, get: %s", i, test.want, got)
		}
	}
}

func TestCatalog_LaterThan(t *testing.T) {
	catalog := Default()

	cases := []struct {
		name      string
		wantNames []string
	}{
		{"conf-3.0", nil},
		{"conf-2.0", []string{"conf-2.5", "conf-3.0"}},
		{"", []string{"conf-1.0", "conf-1.2", "conf-2.0", "conf-2.5", "conf-3.0"}},
	}

	for i, test := range cases {
		infos := catalog.LaterThan(test.name)
		if len(infos) != len(test.wantNames) {
			t.Fatalf("#%d: want %d generations, get: %d", i, len(test.wantNames), len(infos))
		}
		for j, name := range test.wantNames {
			if infos[j].Name != name {
				t.Fatalf("#%d: generation %d want: %s, get: %s", i, j, name, infos[j].Name)
			}
		}
	}
}

func TestCatalog_BestUpgrade(t *testing.T) {
	catalog := Default()

	best, err := catalog.BestUpgrade(makeValidDoc())
	if err != nil {
		t.Fatalf("valid document want a best generation, get: %v", err)
	}
	if best.Name != "conf-3.0" {
		t.Fatalf("best generation want: conf-3.0, get: %s", best.Name)
	}

	bad := makeValidDoc()
	bad.Name = "not-a-cib"
	if _, err := catalog.BestUpgrade(bad); err == nil {
		t.Fatalf("malformed document must validate against nothing")
	}
}

func TestSchema_Validate(t *testing.T) {
	s := Default().Latest()

	if err := s.Validate(makeValidDoc()); err != nil {
		t.Fatalf("valid document want success, get: %v", err)
	}
	if err := s.Validate(nil); err == nil {
		t.Fatalf("nil document want failure")
	}

	missing := makeValidDoc()
	delete(missing.Attrs, cibpd.AttrEpoch)
	if err := s.Validate(missing); err == nil {
		t.Fatalf("document without version triple want failure")
	}

	wrongRoot := makeValidDoc()
	wrongRoot.Name = "status"
	if err := s.Validate(wrongRoot); err == nil {
		t.Fatalf("wrong root element want failure")
	}
}
