package document

import (
	"fmt"

	"github.com/thinkermao/cibsync/cib/proto"
)

// ApplyDiff applies an incremental delta on top of existing. The
// delta's del-triple must match the current version exactly; anything
// else means the replica has diverged and needs a full refresh, which
// is reported as ErrDiffResync. The input document is never mutated.
func ApplyDiff(existing *cibpd.Document, diff *cibpd.Diff) (*cibpd.Document, error) {
	if diff == nil {
		return nil, fmt.Errorf("%w: diff payload missing", cibpd.ErrProtocol)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: no document to patch", cibpd.ErrDiffResync)
	}

	current := VersionOf(existing)
	if current.Compare(diff.Del) != 0 {
		return nil, fmt.Errorf("%w: diff expects %s, have %s",
			cibpd.ErrDiffResync, diff.Del, current)
	}

	result := Clone(existing)
	for i := range diff.Ops {
		if err := applyOp(result, &diff.Ops[i]); err != nil {
			return nil, fmt.Errorf("%w: op %d: %v", cibpd.ErrDiffFailed, i, err)
		}
	}
	SetVersion(result, diff.Add)
	return result, nil
}

// Replace installs payload as the whole document. A payload with an
// older version triple than the existing one is rejected unless force
// is set (the sender asserting authority, e.g. a global update).
func Replace(existing *cibpd.Document, payload *cibpd.Document, force bool) (*cibpd.Document, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: replacement payload missing", cibpd.ErrProtocol)
	}
	if existing != nil && !force {
		if VersionOf(payload).Compare(VersionOf(existing)) < 0 {
			return nil, fmt.Errorf("%w: %s < %s", cibpd.ErrOldData,
				VersionOf(payload), VersionOf(existing))
		}
	}
	return Clone(payload), nil
}

func applyOp(doc *cibpd.Document, op *cibpd.PatchOp) error {
	target := doc
	if op.Section != "" {
		target = FindSection(doc, op.Section)
	}

	switch op.Kind {
	case cibpd.PatchSetAttr:
		if target == nil {
			return fmt.Errorf("no section %q", op.Section)
		}
		if target.Attrs == nil {
			target.Attrs = make(map[string]string)
		}
		target.Attrs[op.Attr] = op.Value

	case cibpd.PatchRemoveAttr:
		if target == nil {
			return fmt.Errorf("no section %q", op.Section)
		}
		if _, ok := target.Attrs[op.Attr]; !ok {
			return fmt.Errorf("no attribute %q in section %q", op.Attr, op.Section)
		}
		delete(target.Attrs, op.Attr)

	case cibpd.PatchReplaceSection:
		if op.Content == nil {
			return fmt.Errorf("replace of section %q carries no content", op.Section)
		}
		content := Clone(op.Content)
		for i, child := range doc.Children {
			if child.Name == op.Section {
				doc.Children[i] = content
				return nil
			}
		}
		doc.Children = append(doc.Children, content)

	case cibpd.PatchRemoveSection:
		for i, child := range doc.Children {
			if child.Name == op.Section {
				doc.Children = append(doc.Children[:i], doc.Children[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("no section %q", op.Section)

	default:
		return fmt.Errorf("unknown patch op %d", op.Kind)
	}
	return nil
}
