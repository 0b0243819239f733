package cibpd

import "fmt"

// Well-known root element and attribute names of the shared document.
const (
	ElemCIB = "cib"

	AttrAdminEpoch   = "admin_epoch"
	AttrEpoch        = "epoch"
	AttrNumUpdates   = "num_updates"
	AttrValidateWith = "validate-with"
)

// Version is the (adminEpoch, epoch, numUpdates) triple. It orders
// lexicographically and only ever increases for a given document.
type Version struct {
	AdminEpoch uint64
	Epoch      uint64
	NumUpdates uint64
}

// Compare returns -1, 0 or 1 as v orders before, equal to or after o.
func (v Version) Compare(o Version) int {
	switch {
	case v.AdminEpoch != o.AdminEpoch:
		if v.AdminEpoch < o.AdminEpoch {
			return -1
		}
		return 1
	case v.Epoch != o.Epoch:
		if v.Epoch < o.Epoch {
			return -1
		}
		return 1
	case v.NumUpdates != o.NumUpdates:
		if v.NumUpdates < o.NumUpdates {
			return -1
		}
		return 1
	}
	return 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.AdminEpoch, v.Epoch, v.NumUpdates)
}

// Document is the wire form of the shared configuration document: a
// named node with attributes and named child sections.
type Document struct {
	Name     string
	Attrs    map[string]string
	Children []*Document
}

func (d *Document) Reset() { *d = Document{} }

// PatchOpKind enumerates the section-level edits a diff or a
// transaction batch may carry.
type PatchOpKind int

const (
	PatchSetAttr PatchOpKind = iota
	PatchRemoveAttr
	PatchReplaceSection
	PatchRemoveSection
)

var patchOpKindString = []string{
	"set attribute",
	"remove attribute",
	"replace section",
	"remove section",
}

func (k PatchOpKind) String() string { return patchOpKindString[k] }

// PatchOp is a single edit. Section "" addresses the document root.
type PatchOp struct {
	Kind    PatchOpKind
	Section string
	Attr    string
	Value   string
	Content *Document
}

// Diff is a delta between two document versions. Del is the version the
// diff applies on top of, Add the version after application.
type Diff struct {
	Del Version
	Add Version
	Ops []PatchOp
}

func (d *Diff) Reset() { *d = Diff{} }

// Transaction is an ordered batch of edits committed atomically.
type Transaction struct {
	Ops []PatchOp
}

func (t *Transaction) Reset() { *t = Transaction{} }
