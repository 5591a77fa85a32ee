package store

import (
	"context"
	"sort"

	"github.com/sells-group/utility-bills/internal/model"
)

// Store defines the persistence interface for bill ingestion and reporting.
type Store interface {
	// InTx runs fn inside one database transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error

	// Schema catalog
	DetailTables(ctx context.Context) ([]model.DetailTable, error)
	Categories(ctx context.Context) ([]model.Category, error)

	// Reporting read path
	ListBills(ctx context.Context, module model.Module) ([]model.Bill, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the write surface available inside a transaction.
type Tx interface {
	// CategoryID looks a category up by name. It reports false when the
	// category does not exist.
	CategoryID(ctx context.Context, name string) (int64, bool, error)
	CreateCategory(ctx context.Context, name string) (int64, error)
	InsertInvoice(ctx context.Context, inv *model.Invoice) (int64, error)
	// InsertTypedDetail writes one row into a dedicated detail table. The
	// table and column names must come from the schema catalog.
	InsertTypedDetail(ctx context.Context, table string, invoiceID int64, cols []string, vals []any) error
	InsertGenericDetail(ctx context.Context, invoiceID int64, key, value string) error
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const dateLayout = "2006-01-02"

// catalogColumn is one (table, column) pair read from the schema catalog.
type catalogColumn struct {
	table  string
	column string
}

// groupDetailTables folds catalog rows into detail tables, dropping the
// key columns that are never written from classifier fields.
func groupDetailTables(cols []catalogColumn) []model.DetailTable {
	byName := make(map[string]*model.DetailTable)
	var order []string
	for _, c := range cols {
		if c.table == model.GenericDetailTable {
			continue
		}
		t, ok := byName[c.table]
		if !ok {
			t = &model.DetailTable{Name: c.table}
			byName[c.table] = t
			order = append(order, c.table)
		}
		if c.column == "fatura_id" || c.column == "id" {
			continue
		}
		t.Columns = append(t.Columns, c.column)
	}
	sort.Strings(order)
	out := make([]model.DetailTable, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

// billColumns returns the columns selected for a module, in scan order.
func billColumns(m model.Module) []string {
	cols := []string{m.IDColumn, m.InstallationColumn, m.AmountColumn, m.DueDateColumn, m.StatusColumn}
	return append(cols, m.Extra...)
}

// newBill builds a Bill from nullable text values in billColumns order.
func newBill(m model.Module, vals []*string) model.Bill {
	get := func(i int) string {
		if i >= len(vals) || vals[i] == nil {
			return ""
		}
		return *vals[i]
	}
	b := model.Bill{
		ID:           get(0),
		Module:       m.Name,
		Installation: get(1),
		Status:       get(4),
	}
	if amt, err := model.ParseAmount(get(2)); err == nil {
		b.Amount = amt
	}
	if d, ok := model.ParseDate(get(3)); ok {
		b.DueDate = &d
	}
	if len(m.Extra) > 0 {
		b.Extra = make(map[string]string, len(m.Extra))
		for i, col := range m.Extra {
			if v := vals[5+i]; v != nil {
				b.Extra[col] = *v
			}
		}
	}
	return b
}
