package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/thinkermao/cibsync/cib/proto"
)

// VersionedDigest computes the content digest over the canonical
// serialized form of the document, mixed with the feature set so nodes
// speaking different protocol generations never compare equal.
func VersionedDigest(doc *cibpd.Document) string {
	h := sha256.New()
	io.WriteString(h, cibpd.FeatureSet)
	canonicalize(h, doc)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize writes a deterministic rendering: attributes sorted by
// name, children in document order.
func canonicalize(w io.Writer, doc *cibpd.Document) {
	if doc == nil {
		return
	}
	fmt.Fprintf(w, "<%s", doc.Name)

	names := make([]string, 0, len(doc.Attrs))
	for name := range doc.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, " %s=%q", name, doc.Attrs[name])
	}
	io.WriteString(w, ">")

	for _, child := range doc.Children {
		canonicalize(w, child)
	}
	fmt.Fprintf(w, "</%s>", doc.Name)
}
