package core

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/thinkermao/cibsync/cib/document"
	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/utils/pd"
)

// processShutdownReq implements the three-way shutdown handshake. A
// bare request is only acknowledged; a reply terminates us, but only
// if we actually asked to shut down.
func (c *Core) processShutdownReq(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	host := req.Src

	if !req.IsReply() {
		log.Infof("%s peer %s is requesting to shut down", c.name, host)
		return existing, nil, nil
	}

	if !c.shutdownRequested {
		log.Errorf("%s peer %s mistakenly thinks we wanted to shut down", c.name, host)
		return existing, nil, fmt.Errorf("%w: unsolicited shutdown ack from %s",
			cibpd.ErrInvalidArgument, host)
	}

	log.Infof("%s peer %s has acknowledged our shutdown request", c.name, host)
	c.callback.Terminate()
	return existing, nil, nil
}

// processNoop exists for protocol compatibility with legacy peers.
func (c *Core) processNoop(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	log.Tracef("%s processing %q event", c.name, op)
	return existing, nil, nil
}

// processReadWrite answers the is-primary query and applies role
// changes. Promotion is idempotent; any read/write op other than the
// explicit promotion demotes a primary back to secondary.
func (c *Core) processReadWrite(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	log.Tracef("%s processing %q event", c.name, op)

	if op == cibpd.OpIsPrimary {
		if c.role.IsPrimary() {
			return existing, nil, nil
		}
		return existing, nil, cibpd.ErrPermissionDenied
	}

	if op == cibpd.OpPrimary {
		if !c.role.IsPrimary() {
			log.Infof("%s is now in R/W mode", c.name)
			c.role = RolePrimary
		} else {
			log.Debugf("%s is still in R/W mode", c.name)
		}
	} else if c.role.IsPrimary() {
		log.Infof("%s is now in R/O mode", c.name)
		c.role = RoleSecondary
	}

	return existing, nil, nil
}

// processPing reports the current versioned digest together with the
// echoed sequence id. The answer carries the full document only when
// tracing; otherwise a shallow shell with the version attributes is
// enough for the requester to detect divergence.
func (c *Core) processPing(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	digest := document.VersionedDigest(existing)

	log.Tracef("%s processing %q event %s from %s", c.name, op, req.PingID, req.Src)

	answer := &cibpd.PingResponse{
		Digest:     digest,
		PingID:     req.PingID,
		FeatureSet: cibpd.FeatureSet,
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		// Append the whole document so the receiver can log the
		// differences.
		answer.Doc = document.Clone(existing)
	} else if existing != nil {
		answer.Doc = document.ShallowShell(existing)
	}

	log.Infof("%s reporting current digest to %s: %s for %s",
		c.name, req.Src, digest, document.VersionOf(existing))

	return existing, answer, nil
}

func (c *Core) processSync(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	return existing, nil, c.syncDocument(req, existing, true)
}

func (c *Core) processSyncOne(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	return existing, nil, c.syncDocument(req, existing, false)
}

// processServerDiff applies an incremental update, suppressing it when
// a resync is outstanding on a secondary. Suppression is bounded: once
// more than maxDiffRetry diffs were ignored the counter resets, so one
// lost resync reply cannot wedge the replica forever.
func (c *Core) processServerDiff(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	if c.syncInProgress > c.maxDiffRetry {
		// Don't ignore diffs forever; the last request may have been
		// lost. If the diff fails, we'll ask for another full resync.
		c.syncInProgress = 0
	}

	// The primary instance should never ignore a diff.
	if c.syncInProgress > 0 && !c.role.IsPrimary() {
		c.syncInProgress++
		if req.Diff != nil {
			log.Infof("%s not applying diff %s -> %s (sync in progress)",
				c.name, req.Diff.Del, req.Diff.Add)
		} else {
			log.Infof("%s not applying diff (sync in progress)", c.name)
		}
		return nil, nil, cibpd.ErrDiffResync
	}

	result, err := document.ApplyDiff(existing, req.Diff)
	log.Tracef("%s diff result: %v (%v)", c.name, err, c.role)

	if errors.Is(err, cibpd.ErrDiffResync) && !c.role.IsPrimary() {
		result = nil
		c.requestResync("")

	} else if errors.Is(err, cibpd.ErrDiffResync) {
		// The primary's copy is authoritative; it never asks anyone
		// for a resync.
		err = cibpd.ErrDiffFailed
		if options&cibpd.OptForceDiff != 0 {
			log.Warnf("%s not requesting full refresh in R/W mode", c.name)
		}
		result = nil

	} else if err != nil && !c.role.IsPrimary() && c.legacy {
		log.Warnf("%s requesting full refresh because update failed: %v", c.name, err)
		result = nil
		c.requestResync("")
	}

	return result, nil, err
}

// processServerReplace installs a full document. Accepting a whole
// replacement always clears any pending-resync condition.
func (c *Core) processServerReplace(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	result, err := document.Replace(existing, req.Doc, req.GlobalUpdate)

	if err == nil && req.Doc != nil && req.Doc.Name == cibpd.ElemCIB {
		c.syncInProgress = 0
	}
	return result, nil, err
}

// processDeleteAbsolute is retained only for protocol compatibility
// with legacy peers.
func (c *Core) processDeleteAbsolute(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	return existing, nil, cibpd.ErrInvalidArgument
}

// processCommitTransaction applies a queued operation batch atomically
// against a working copy. On success the caller activates the result
// locally and syncs it to all nodes through the ordinary replace path;
// on failure the caller discards it. No replication happens here.
func (c *Core) processCommitTransaction(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	client := c.callback.FindClient(req.ClientID)

	result, err := document.ApplyBatch(existing, req.Batch)
	if err != nil {
		log.Errorf("%s could not commit transaction for %s: %v",
			c.name, transactionSource(client, req.Src), err)
		return nil, nil, err
	}
	return result, nil, nil
}

// processSchemas lists every schema generation strictly newer than the
// one named in the query. An empty list is a success: the requester is
// already up to date.
func (c *Core) processSchemas(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	if req.Query == nil {
		log.Warnf("%s no data specified in %q request", c.name, op)
		return existing, nil, fmt.Errorf("%w: schema query payload missing", cibpd.ErrProtocol)
	}
	if req.Query.Version == "" {
		log.Warnf("%s no version specified in %q request", c.name, op)
		return existing, nil, fmt.Errorf("%w: schema query names no version", cibpd.ErrProtocol)
	}

	answer := &cibpd.SchemaList{}
	if req.Query.Version == c.catalog.Latest().Name {
		return existing, answer, nil
	}

	answer.Schemas = c.catalog.LaterThan(req.Query.Version)
	return existing, answer, nil
}
