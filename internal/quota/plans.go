package quota

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"certifier/internal/tenant/models"
	"certifier/pkg/platform/sentinel"
)

//go:embed plans.yaml
var defaultPlans []byte

// Unlimited is the limit value that disables a ceiling.
const Unlimited int64 = -1

// Plan is a subscription tier and its per-period ceilings.
type Plan struct {
	ID     string           `yaml:"id"`
	Name   string           `yaml:"name"`
	Limits map[string]int64 `yaml:"limits"`
}

// Limit returns the ceiling for a counter, Unlimited when the plan sets none.
func (p *Plan) Limit(c models.Counter) int64 {
	v, ok := p.Limits[string(c)]
	if !ok || v < 0 {
		return Unlimited
	}
	return v
}

// Catalog is an immutable set of plans keyed by id.
type Catalog struct {
	plans map[string]*Plan
}

type catalogFile struct {
	Plans []*Plan `yaml:"plans"`
}

// ParseCatalog decodes a YAML plan catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	c := &Catalog{plans: make(map[string]*Plan, len(f.Plans))}
	for _, p := range f.Plans {
		if p == nil || p.ID == "" {
			return nil, fmt.Errorf("plan catalog: plan without id")
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("plan catalog: duplicate plan %q", p.ID)
		}
		for key := range p.Limits {
			if !knownCounter(key) {
				return nil, fmt.Errorf("plan catalog: plan %q has unknown limit %q", p.ID, key)
			}
		}
		c.plans[p.ID] = p
	}
	return c, nil
}

// LoadCatalog reads the catalog at path, or the built-in catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultPlans)
	if err != nil {
		panic(err)
	}
	return c
}

// Plan returns the plan with the given id.
func (c *Catalog) Plan(planID string) (*Plan, error) {
	p, ok := c.plans[planID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p, nil
}

func knownCounter(key string) bool {
	for _, c := range models.Counters {
		if string(c) == key {
			return true
		}
	}
	return false
}
