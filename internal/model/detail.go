package model

import "sort"

// GenericDetailTable is the key/value fallback used when a category has no
// dedicated detail table.
const GenericDetailTable = "fatura_detalhes"

// DetailTableSuffix is appended to a sanitized category name to form the
// name of its dedicated detail table.
const DetailTableSuffix = "_detalhes"

// DetailTable describes a dedicated per-category detail table found in the
// schema catalog. Columns excludes the fatura_id key.
type DetailTable struct {
	Name    string   `json:"table" yaml:"table"`
	Columns []string `json:"columns" yaml:"columns"`
}

// StrategyKind selects how an invoice's extra fields are stored.
type StrategyKind int

const (
	// StrategyGeneric writes one (fatura_id, chave, valor) row per field.
	StrategyGeneric StrategyKind = iota
	// StrategyTyped writes a single row into the category's own table.
	StrategyTyped
)

// DetailStrategy is resolved once per category and passed to the writer.
// An invoice's details are written with exactly one strategy.
type DetailStrategy struct {
	Kind    StrategyKind
	Table   string
	columns map[string]bool
}

// GenericStrategy returns the key/value fallback strategy.
func GenericStrategy() DetailStrategy {
	return DetailStrategy{Kind: StrategyGeneric, Table: GenericDetailTable}
}

// TypedStrategy returns a strategy writing into table, which accepts the
// given columns.
func TypedStrategy(table string, columns []string) DetailStrategy {
	cols := make(map[string]bool, len(columns))
	for _, c := range columns {
		cols[c] = true
	}
	return DetailStrategy{Kind: StrategyTyped, Table: table, columns: cols}
}

// Typed reports whether the strategy targets a dedicated table.
func (s DetailStrategy) Typed() bool {
	return s.Kind == StrategyTyped
}

// HasColumn reports whether the typed table has the named column.
func (s DetailStrategy) HasColumn(name string) bool {
	return s.columns[name]
}

// Columns returns the typed table's writable columns in sorted order.
func (s DetailStrategy) Columns() []string {
	out := make([]string, 0, len(s.columns))
	for c := range s.columns {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s DetailStrategy) String() string {
	if s.Typed() {
		return "typed:" + s.Table
	}
	return "generic"
}
