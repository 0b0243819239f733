package conf

import (
	log "github.com/sirupsen/logrus"
)

// MaxDiffRetry is the number of diffs ignored while waiting for a
// resync before suppression is abandoned. The last sync request may
// have been lost; a replica must not ignore updates forever.
const MaxDiffRetry = 5

// Config carries the information needed to build a replication core.
type Config struct {
	// Name is the cluster-unique name of the local node.
	Name string

	// Primary is the externally assigned initial role.
	Primary bool

	// Legacy enables the compatibility protocol variant where schema
	// upgrades may be applied locally by the primary instead of only
	// via broadcast, and where secondaries recover from any failed
	// diff with a full refresh.
	Legacy bool

	// MaxDiffRetry overrides the diff suppression cap; zero selects
	// the default.
	MaxDiffRetry int
}

// Verify checks whether the fields of Config are valid.
func (c *Config) Verify() bool {
	if c.Name == "" {
		log.Panicf("node name cannot be empty")
	}

	if c.MaxDiffRetry < 0 {
		log.Panicf("diff retry cap must not be negative")
	}

	return true
}
