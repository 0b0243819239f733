// Package document implements the store-side primitives of the shared
// configuration document: version accounting, digests, diff and replace
// application, batch commits and schema upgrades. All primitives treat
// their inputs as immutable and return fresh documents.
package document

import (
	"strconv"

	"github.com/thinkermao/cibsync/cib/proto"
)

// New returns an empty document at version 0.0.0 validating against
// the given schema generation.
func New(schemaName string) *cibpd.Document {
	return &cibpd.Document{
		Name: cibpd.ElemCIB,
		Attrs: map[string]string{
			cibpd.AttrAdminEpoch:   "0",
			cibpd.AttrEpoch:        "0",
			cibpd.AttrNumUpdates:   "0",
			cibpd.AttrValidateWith: schemaName,
		},
	}
}

// VersionOf extracts the version triple from the root attributes.
// Missing or malformed attributes read as zero.
func VersionOf(doc *cibpd.Document) cibpd.Version {
	if doc == nil {
		return cibpd.Version{}
	}
	return cibpd.Version{
		AdminEpoch: attrUint(doc, cibpd.AttrAdminEpoch),
		Epoch:      attrUint(doc, cibpd.AttrEpoch),
		NumUpdates: attrUint(doc, cibpd.AttrNumUpdates),
	}
}

// SetVersion stamps the version triple onto the root attributes.
func SetVersion(doc *cibpd.Document, v cibpd.Version) {
	if doc.Attrs == nil {
		doc.Attrs = make(map[string]string)
	}
	doc.Attrs[cibpd.AttrAdminEpoch] = strconv.FormatUint(v.AdminEpoch, 10)
	doc.Attrs[cibpd.AttrEpoch] = strconv.FormatUint(v.Epoch, 10)
	doc.Attrs[cibpd.AttrNumUpdates] = strconv.FormatUint(v.NumUpdates, 10)
}

// SchemaOf returns the schema generation the document validates with.
func SchemaOf(doc *cibpd.Document) string {
	if doc == nil {
		return ""
	}
	return doc.Attrs[cibpd.AttrValidateWith]
}

// Clone returns a deep copy.
func Clone(doc *cibpd.Document) *cibpd.Document {
	if doc == nil {
		return nil
	}
	copy := &cibpd.Document{Name: doc.Name}
	if doc.Attrs != nil {
		copy.Attrs = make(map[string]string, len(doc.Attrs))
		for k, v := range doc.Attrs {
			copy.Attrs[k] = v
		}
	}
	for _, child := range doc.Children {
		copy.Children = append(copy.Children, Clone(child))
	}
	return copy
}

// ShallowShell returns a childless copy carrying only the root
// attributes, enough for a receiver to compare version triples.
func ShallowShell(doc *cibpd.Document) *cibpd.Document {
	if doc == nil {
		return nil
	}
	shell := Clone(doc)
	shell.Children = nil
	return shell
}

// FindSection returns the direct child section with the given name.
func FindSection(doc *cibpd.Document, name string) *cibpd.Document {
	for _, child := range doc.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

func attrUint(doc *cibpd.Document, name string) uint64 {
	v, err := strconv.ParseUint(doc.Attrs[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
