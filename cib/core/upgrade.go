package core

import (
	log "github.com/sirupsen/logrus"
	"github.com/thinkermao/cibsync/cib/document"
	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/utils/pd"
)

// processUpgradeServer drives the two-phase schema upgrade.
//
// The originator of an upgrade request sends it without SchemaMax. The
// receiving node verifies, via a validation-only simulation, that a
// newer schema is reachable and re-broadcasts the request with
// SchemaMax set; every node (including the sender) then performs the
// actual upgrade when the broadcast order arrives. A rejected request
// is answered with a direct reply to the originating peer so it can
// notify its local client.
func (c *Core) processUpgradeServer(op string, options cibpd.CallOptions,
	section string, req *cibpd.Request, existing *cibpd.Document,
) (*cibpd.Document, pd.Message, error) {
	if req.SchemaMax != "" {
		// Broadcast order: apply the resolved upgrade locally.
		result, err := document.Upgrade(existing, req.SchemaMax, c.catalog)
		return result, nil, err
	}

	host := req.Src
	log.Tracef("%s processing %q event", c.name, op)

	var upgradeErr error
	result := existing

	best, err := c.catalog.BestUpgrade(existing)
	current := c.catalog.VersionOf(document.SchemaOf(existing))

	switch {
	case err != nil:
		upgradeErr = err

	case best.Version.GT(current):
		log.Infof("%s upgrade request from %s verified", c.name, host)

		up := &cibpd.Request{
			Type:          cibpd.TypeCIB,
			Op:            cibpd.OpUpgrade,
			SchemaMax:     best.Name,
			DelegatedFrom: host,
			ClientID:      req.ClientID,
			CallOptions:   req.CallOptions,
			CallID:        req.CallID,
		}

		if c.legacy && c.role.IsPrimary() {
			// Legacy peers cannot act on the broadcast order, so the
			// primary applies the upgrade directly.
			result, _, upgradeErr = c.processUpgradeServer(op, options, section, up, existing)
		} else {
			c.callback.Send(nil, up)
		}

	default:
		upgradeErr = cibpd.ErrSchemaUnchanged
	}

	if upgradeErr != nil {
		// Notify the originating peer so it can notify its local
		// clients.
		origin := c.callback.LookupPeer(host)

		peerName := "lost"
		if origin != nil {
			peerName = origin.Name
		}
		log.Infof("%s rejecting upgrade request from %s: %v [rc=%d peer=%s]",
			c.name, host, upgradeErr, cibpd.StatusCode(upgradeErr), peerName)

		if origin != nil {
			up := &cibpd.Request{
				Type:          cibpd.TypeCIB,
				Op:            cibpd.OpUpgrade,
				DelegatedFrom: host,
				IsReplyTo:     host,
				ClientID:      req.ClientID,
				CallOptions:   req.CallOptions,
				CallID:        req.CallID,
				UpgradeRC:     cibpd.StatusCode(upgradeErr),
			}
			if !c.callback.Send(origin, up) {
				log.Warnf("%s could not send upgrade result to %s", c.name, host)
			}
		}
	}

	return result, nil, upgradeErr
}
