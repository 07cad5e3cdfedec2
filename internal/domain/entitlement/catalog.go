package entitlement

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/bizops/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is the immutable capability registry plus the tier matrix it
// was loaded with. Build it once at startup and pass it explicitly.
type Catalog struct {
	capabilities map[Key]Capability
	order        []Key
	tiers        map[Tier]map[Key]TierMapping
}

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	Capabilities []struct {
		Key    Key    `yaml:"key"`
		Name   string `yaml:"name"`
		Active *bool  `yaml:"active"`
	} `yaml:"capabilities"`
	Tiers map[Tier]map[Key]struct {
		Enabled bool   `yaml:"enabled"`
		Limits  Limits `yaml:"limits"`
	} `yaml:"tiers"`
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads and validates a catalog YAML file. An empty path
// yields the compiled-in default.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and validates catalog YAML. Unknown capability keys
// in the tier matrix are an error here rather than a silent runtime deny.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		capabilities: make(map[Key]Capability, len(f.Capabilities)),
		tiers:        make(map[Tier]map[Key]TierMapping, len(f.Tiers)),
	}

	for i, fc := range f.Capabilities {
		if !fc.Key.Valid() {
			return nil, domain.Invalid("capabilities[%d]: invalid key %q", i, fc.Key)
		}
		if fc.Name == "" {
			return nil, domain.Invalid("capability %s: name is required", fc.Key)
		}
		if _, dup := c.capabilities[fc.Key]; dup {
			return nil, domain.Invalid("capability %s declared twice", fc.Key)
		}
		active := true
		if fc.Active != nil {
			active = *fc.Active
		}
		c.capabilities[fc.Key] = Capability{Key: fc.Key, Name: fc.Name, Active: active}
		c.order = append(c.order, fc.Key)
	}

	for tier, entries := range f.Tiers {
		if !tier.Valid() {
			return nil, domain.Invalid("invalid tier name %q", tier)
		}
		mappings := make(map[Key]TierMapping, len(entries))
		for key, e := range entries {
			if _, ok := c.capabilities[key]; !ok {
				return nil, domain.Invalid("tier %s: unknown capability %q", tier, key)
			}
			mappings[key] = TierMapping{Tier: tier, Capability: key, Enabled: e.Enabled, Limits: e.Limits}
		}
		c.tiers[tier] = mappings
	}

	return c, nil
}

// Lookup returns the capability registered under key.
func (c *Catalog) Lookup(key Key) (Capability, bool) {
	capability, ok := c.capabilities[key]
	return capability, ok
}

// Known reports whether key is registered, active or not.
func (c *Catalog) Known(key Key) bool {
	_, ok := c.capabilities[key]
	return ok
}

// Keys returns every registered key in declaration order.
func (c *Catalog) Keys() []Key {
	out := make([]Key, len(c.order))
	copy(out, c.order)
	return out
}

// Capabilities returns every registered capability in declaration order.
func (c *Catalog) Capabilities() []Capability {
	out := make([]Capability, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.capabilities[k])
	}
	return out
}

// Tiers returns the tier names of the matrix, sorted.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, 0, len(c.tiers))
	for t := range c.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TierMappings returns the seed mappings declared for tier, ordered by
// capability declaration order.
func (c *Catalog) TierMappings(tier Tier) []TierMapping {
	entries := c.tiers[tier]
	out := make([]TierMapping, 0, len(entries))
	for _, k := range c.order {
		if m, ok := entries[k]; ok {
			m.Limits = m.Limits.Clone()
			out = append(out, m)
		}
	}
	return out
}
