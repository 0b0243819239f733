package document

import (
	"fmt"

	"github.com/thinkermao/cibsync/cib/proto"
)

// ApplyBatch commits an ordered batch of edits against a working copy
// of existing. Either every op applies and the returned document
// carries a single version bump, or the whole batch is discarded.
func ApplyBatch(existing *cibpd.Document, batch *cibpd.Transaction) (*cibpd.Document, error) {
	if batch == nil || len(batch.Ops) == 0 {
		return nil, fmt.Errorf("%w: transaction carries no operations", cibpd.ErrProtocol)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: no document to commit against", cibpd.ErrProtocol)
	}

	result := Clone(existing)
	for i := range batch.Ops {
		if err := applyOp(result, &batch.Ops[i]); err != nil {
			return nil, fmt.Errorf("op %d (%s): %v", i, batch.Ops[i].Kind, err)
		}
	}

	version := VersionOf(result)
	version.NumUpdates++
	SetVersion(result, version)
	return result, nil
}
