package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Dialect quotes identifiers and numbers placeholders for one SQL engine.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
	MySQL
)

// ParseDialect maps a store driver name onto its dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return 0, eris.Errorf("db: unknown driver %q", driver)
}

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	default:
		return "postgres"
	}
}

// Quote quotes a single identifier. Schema-qualified names ("a.b") are
// quoted part by part.
func (d Dialect) Quote(ident string) string {
	if d == Postgres {
		parts := strings.SplitN(ident, ".", 2)
		if len(parts) == 2 {
			return pgx.Identifier{parts[0], parts[1]}.Sanitize()
		}
		return pgx.Identifier{ident}.Sanitize()
	}
	parts := strings.SplitN(ident, ".", 2)
	for i, p := range parts {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

// QuoteAndJoin quotes each column name and joins with commas.
func (d Dialect) QuoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// InsertStatement builds "INSERT INTO table (cols) VALUES (params)".
func (d Dialect) InsertStatement(table string, cols []string) (string, error) {
	if len(cols) == 0 {
		return "", eris.Errorf("db: insert into %s: no columns specified", table)
	}
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), d.QuoteAndJoin(cols), strings.Join(params, ", ")), nil
}
