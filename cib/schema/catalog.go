// Package schema maintains the catalog of configuration schema
// generations and answers ordering and upgrade-reachability queries
// about them.
package schema

import (
	"fmt"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/thinkermao/cibsync/cib/proto"
)

// Schema is one generation of the validation schema.
type Schema struct {
	Name       string
	Version    semver.Version
	Definition string
}

// Info renders the wire form of the generation.
func (s Schema) Info() cibpd.SchemaInfo {
	return cibpd.SchemaInfo{
		Name:       s.Name,
		Version:    s.Version.String(),
		Definition: s.Definition,
	}
}

// Validate checks the document against this generation. Every
// generation requires a well-formed root carrying the version triple.
func (s Schema) Validate(doc *cibpd.Document) error {
	if doc == nil {
		return fmt.Errorf("schema %s: no document", s.Name)
	}
	if doc.Name != cibpd.ElemCIB {
		return fmt.Errorf("schema %s: unexpected root element %q", s.Name, doc.Name)
	}
	for _, attr := range []string{
		cibpd.AttrAdminEpoch, cibpd.AttrEpoch, cibpd.AttrNumUpdates,
	} {
		if _, ok := doc.Attrs[attr]; !ok {
			return fmt.Errorf("schema %s: root lacks %s", s.Name, attr)
		}
	}
	return nil
}

// Catalog is an ascending, deduplicated list of schema generations.
type Catalog struct {
	schemas []Schema
}

// Default returns the catalog of built-in generations.
func Default() *Catalog {
	return &Catalog{schemas: []Schema{
		{Name: "conf-1.0", Version: semver.MustParse("1.0.0"),
			Definition: "cib = element cib { version-attrs, configuration }"},
		{Name: "conf-1.2", Version: semver.MustParse("1.2.0"),
			Definition: "cib = element cib { version-attrs, configuration, status? }"},
		{Name: "conf-2.0", Version: semver.MustParse("2.0.0"),
			Definition: "cib = element cib { version-attrs, validate-with, configuration, status? }"},
		{Name: "conf-2.5", Version: semver.MustParse("2.5.0"),
			Definition: "cib = element cib { version-attrs, validate-with, configuration, status?, tags? }"},
		{Name: "conf-3.0", Version: semver.MustParse("3.0.0"),
			Definition: "cib = element cib { version-attrs, validate-with, configuration, status?, tags?, alerts? }"},
	}}
}

// Latest returns the newest known generation.
func (c *Catalog) Latest() Schema {
	return c.schemas[len(c.schemas)-1]
}

// Lookup resolves a generation by name.
func (c *Catalog) Lookup(name string) (Schema, bool) {
	for _, s := range c.schemas {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}

// VersionOf parses the version carried in a generation name, e.g.
// "conf-2.5" -> 2.5.0. Unknown or unversioned names read as 0.0.0 so
// that every known generation sorts after them.
func (c *Catalog) VersionOf(name string) semver.Version {
	if s, ok := c.Lookup(name); ok {
		return s.Version
	}
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return semver.Version{}
	}
	v, err := semver.ParseTolerant(name[idx+1:])
	if err != nil {
		return semver.Version{}
	}
	return v
}

// LaterThan lists every generation strictly newer than the named one,
// ascending. The empty result is meaningful: the caller is up to date.
func (c *Catalog) LaterThan(name string) []cibpd.SchemaInfo {
	after := c.VersionOf(name)

	var infos []cibpd.SchemaInfo
	seen := make(map[string]bool)
	for _, s := range c.schemas {
		if s.Version.GT(after) && !seen[s.Name] {
			seen[s.Name] = true
			infos = append(infos, s.Info())
		}
	}
	return infos
}

// BestUpgrade runs a validation-only simulation and reports the newest
// generation the document can validate against.
func (c *Catalog) BestUpgrade(doc *cibpd.Document) (Schema, error) {
	var best *Schema
	var lastErr error
	for i := range c.schemas {
		if err := c.schemas[i].Validate(doc); err != nil {
			lastErr = err
			continue
		}
		best = &c.schemas[i]
	}
	if best == nil {
		return Schema{}, fmt.Errorf("document validates against no known schema: %v", lastErr)
	}
	return *best, nil
}
