package schema

import (
	"context"
	"strings"

	"github.com/sells-group/utility-bills/internal/model"
)

// CategoryTx is the transactional surface the resolver needs.
type CategoryTx interface {
	CategoryID(ctx context.Context, name string) (int64, bool, error)
	CreateCategory(ctx context.Context, name string) (int64, error)
}

// Resolver maps classifier category labels onto category rows.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a Resolver backed by registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve returns the id of the named category, creating the row when the
// classifier reports a label for the first time. An empty label resolves to
// the unknown category.
func (r *Resolver) Resolve(ctx context.Context, tx CategoryTx, name string) (id int64, created bool, err error) {
	name = NormalizeCategory(name)
	id, ok, err := tx.CategoryID(ctx, name)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return id, false, nil
	}
	id, err = tx.CreateCategory(ctx, name)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Strategy returns the detail strategy for a category.
func (r *Resolver) Strategy(name string) model.DetailStrategy {
	return r.registry.Strategy(NormalizeCategory(name))
}

// NormalizeCategory trims a label and maps blanks to the unknown category.
func NormalizeCategory(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.UnknownCategory
	}
	return name
}
