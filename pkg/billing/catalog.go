package billing

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan binds a plan key, as used by clients and stored on records, to a
// processor price.
type Plan struct {
	Key     string `yaml:"key"`
	Name    string `yaml:"name"`
	PriceID string `yaml:"price_id"`
}

type CatalogConfig struct {
	Plans       map[string]string `env:"BILLING_PLANS" envSeparator:"," envKeyValSeparator:":"` // Plans maps plan key to price id, e.g. "pro:price_123,team:price_456".
	DefaultPlan string            `env:"BILLING_DEFAULT_PLAN" envDefault:"pro"`                // DefaultPlan is used when a request names no plan.
	PlansFile   string            `env:"BILLING_PLANS_FILE"`                                   // PlansFile is an optional YAML file that replaces Plans.
}

type catalogFile struct {
	Default string `yaml:"default"`
	Plans   []Plan `yaml:"plans"`
}

// Catalog is the immutable set of purchasable plans.
type Catalog struct {
	defaultKey string
	plans      map[string]Plan
	byPrice    map[string]string
}

// NewCatalog builds a catalog. Plans with an empty price are kept so that
// selecting them reports a configuration error rather than an unknown plan.
func NewCatalog(defaultKey string, plans ...Plan) *Catalog {
	c := &Catalog{
		defaultKey: defaultKey,
		plans:      make(map[string]Plan, len(plans)),
		byPrice:    make(map[string]string, len(plans)),
	}
	for _, p := range plans {
		c.plans[p.Key] = p
		if p.PriceID != "" {
			c.byPrice[p.PriceID] = p.Key
		}
	}
	return c
}

// LoadCatalog builds a catalog from config, reading PlansFile when set.
// The default plan must be one of the configured plans.
func LoadCatalog(cfg CatalogConfig) (*Catalog, error) {
	c, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	if _, ok := c.plans[c.defaultKey]; !ok {
		return nil, errors.Join(ErrConfiguration, fmt.Errorf("default plan %q is not configured", c.defaultKey))
	}
	return c, nil
}

func loadCatalog(cfg CatalogConfig) (*Catalog, error) {
	if cfg.PlansFile == "" {
		keys := make([]string, 0, len(cfg.Plans))
		for k := range cfg.Plans {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		plans := make([]Plan, 0, len(keys))
		for _, k := range keys {
			plans = append(plans, Plan{Key: k, Name: k, PriceID: cfg.Plans[k]})
		}
		return NewCatalog(cfg.DefaultPlan, plans...), nil
	}

	raw, err := os.ReadFile(cfg.PlansFile)
	if err != nil {
		return nil, errors.Join(ErrInvalidPlansFile, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Join(ErrInvalidPlansFile, err)
	}
	for i, p := range f.Plans {
		if p.Key == "" {
			return nil, errors.Join(ErrInvalidPlansFile, fmt.Errorf("plan #%d has no key", i))
		}
	}
	def := f.Default
	if def == "" {
		def = cfg.DefaultPlan
	}
	return NewCatalog(def, f.Plans...), nil
}

// Resolve returns the plan for key, or the default plan if key is empty.
// A missing default plan is a configuration error, not a client one.
func (c *Catalog) Resolve(key string) (Plan, error) {
	if key == "" {
		p, ok := c.plans[c.defaultKey]
		if !ok {
			return Plan{}, errors.Join(ErrConfiguration, fmt.Errorf("default plan %q is not configured", c.defaultKey))
		}
		key = p.Key
	}
	p, ok := c.plans[key]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	if p.PriceID == "" {
		return Plan{}, errors.Join(ErrConfiguration, fmt.Errorf("plan %q has no price configured", key))
	}
	return p, nil
}

// KeyForPrice maps a processor price back to its plan key.
func (c *Catalog) KeyForPrice(priceID string) (string, bool) {
	k, ok := c.byPrice[priceID]
	return k, ok
}

func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Plan) int { return strings.Compare(a.Key, b.Key) })
	return out
}
