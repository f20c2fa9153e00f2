package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"contactdir/internal/gateway/entity"
)

// Stats summarizes a catalog for the landing page counters.
type Stats struct {
	Companies     int `json:"companies"`
	Categories    int `json:"categories"`
	Contacts      int `json:"contacts"`
	UniqueHandles int `json:"uniqueHandles"`
}

// Catalog is an immutable, validated snapshot of the directory sorted by id.
type Catalog struct {
	companies []entity.Company
	byID      map[string]int
	stats     Stats
}

// Load lists src and builds a Catalog. Every invalid or duplicate record is
// reported in the returned error.
func Load(ctx context.Context, src Source, logger *zap.Logger) (*Catalog, error) {
	if src == nil {
		return nil, fmt.Errorf("dataset source is nil")
	}
	companies, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", src.Name(), err)
	}
	cat, err := NewCatalog(companies)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("dataset loaded",
			zap.String("source", src.Name()),
			zap.Int("companies", cat.stats.Companies),
			zap.Int("contacts", cat.stats.Contacts),
		)
	}
	return cat, nil
}

func NewCatalog(companies []entity.Company) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(companies))}
	var errs []error
	for _, company := range companies {
		if strings.HasPrefix(company.ID, "_") {
			continue
		}
		if err := company.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.byID[company.ID]; dup {
			errs = append(errs, fmt.Errorf("company id %q is defined twice", company.ID))
			continue
		}
		c.byID[company.ID] = -1
		c.companies = append(c.companies, company)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	sort.SliceStable(c.companies, func(i, j int) bool { return c.companies[i].ID < c.companies[j].ID })
	handles := make(map[string]struct{})
	for i, company := range c.companies {
		c.byID[company.ID] = i
		c.stats.Categories += len(company.Categories)
		c.stats.Contacts += company.ContactCount()
		for _, h := range company.UniqueHandles() {
			handles[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
		}
	}
	c.stats.Companies = len(c.companies)
	c.stats.UniqueHandles = len(handles)
	return c, nil
}

func (c *Catalog) Get(id string) (entity.Company, bool) {
	if c == nil {
		return entity.Company{}, false
	}
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return entity.Company{}, false
	}
	return c.companies[i], true
}

func (c *Catalog) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// All returns a copy of the companies in id order.
func (c *Catalog) All() []entity.Company {
	if c == nil {
		return nil
	}
	out := make([]entity.Company, len(c.companies))
	copy(out, c.companies)
	return out
}

func (c *Catalog) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return c.stats
}
