package document

import (
	"fmt"

	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/cib/schema"
)

// Upgrade moves the document to the named schema generation. The epoch
// is bumped and the update count reset, so upgraded documents always
// order after their pre-upgrade form. Reports ErrSchemaUnchanged when
// the target is not strictly newer than the declared schema.
func Upgrade(existing *cibpd.Document, target string, catalog *schema.Catalog) (*cibpd.Document, error) {
	if existing == nil {
		return nil, fmt.Errorf("%w: no document to upgrade", cibpd.ErrProtocol)
	}

	next, ok := catalog.Lookup(target)
	if !ok {
		return nil, fmt.Errorf("%w: unknown schema %q", cibpd.ErrInvalidArgument, target)
	}
	if err := next.Validate(existing); err != nil {
		return nil, err
	}

	current := catalog.VersionOf(SchemaOf(existing))
	if !next.Version.GT(current) {
		return nil, cibpd.ErrSchemaUnchanged
	}

	result := Clone(existing)
	result.Attrs[cibpd.AttrValidateWith] = next.Name

	version := VersionOf(result)
	version.Epoch++
	version.NumUpdates = 0
	SetVersion(result, version)
	return result, nil
}
