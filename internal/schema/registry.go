package schema

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-bills/internal/model"
)

// Catalog lists the dedicated detail tables present in the database.
type Catalog interface {
	DetailTables(ctx context.Context) ([]model.DetailTable, error)
}

// Registry maps sanitized category names to their detail strategy. Table
// names are matched case-insensitively; the catalog spelling is kept for writes. It is
// built from the schema catalog at startup so no request ever probes the
// catalog with a string-built identifier.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]model.DetailTable
}

// NewRegistry builds a registry from a fixed set of detail tables.
func NewRegistry(tables []model.DetailTable) *Registry {
	r := &Registry{}
	r.set(tables)
	return r
}

// LoadRegistry builds a registry by introspecting the catalog.
func LoadRegistry(ctx context.Context, c Catalog) (*Registry, error) {
	r := &Registry{}
	if err := r.Refresh(ctx, c); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh re-reads the catalog, replacing the known tables atomically.
func (r *Registry) Refresh(ctx context.Context, c Catalog) error {
	tables, err := c.DetailTables(ctx)
	if err != nil {
		return eris.Wrap(err, "schema: load detail tables")
	}
	r.set(tables)
	zap.L().Debug("schema: detail registry loaded", zap.Int("tables", len(tables)))
	return nil
}

func (r *Registry) set(tables []model.DetailTable) {
	m := make(map[string]model.DetailTable, len(tables))
	for _, t := range tables {
		m[strings.ToLower(t.Name)] = t
	}
	r.mu.Lock()
	r.tables = m
	r.mu.Unlock()
}

// HasDedicatedDetailTable reports whether <sanitized category>_detalhes exists.
func (r *Registry) HasDedicatedDetailTable(category string) bool {
	_, ok := r.lookup(category)
	return ok
}

// Strategy resolves the detail strategy for a category.
func (r *Registry) Strategy(category string) model.DetailStrategy {
	t, ok := r.lookup(category)
	if !ok {
		return model.GenericStrategy()
	}
	return model.TypedStrategy(t.Name, t.Columns)
}

// Tables returns the known detail tables sorted by name.
func (r *Registry) Tables() []model.DetailTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.DetailTable, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) lookup(category string) (model.DetailTable, bool) {
	name := DetailTableName(category)
	if name == "" || name == model.GenericDetailTable {
		return model.DetailTable{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}
