package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/utility-bills/internal/db"
	"github.com/sells-group/utility-bills/internal/model"
)

// SQLStore implements Store over database/sql for SQLite (modernc.org/sqlite)
// and MySQL (go-sql-driver/mysql).
type SQLStore struct {
	db      *sql.DB
	dialect db.Dialect
	driver  string
	dsn     string
}

// IsMemorySQLite reports whether dsn names an in-memory SQLite database.
func IsMemorySQLite(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// In-memory databases are rejected: migrations run on their own connection
// and would never reach the store's database.
func NewSQLite(dsn string) (*SQLStore, error) {
	if IsMemorySQLite(dsn) {
		return nil, eris.Errorf("sqlite: in-memory database %q is not supported, use a file path", dsn)
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLStore{db: conn, dialect: db.SQLite, driver: "sqlite", dsn: dsn}, nil
}

// NewMySQL opens a MySQL database. Multi-statement support is switched on
// for migrations; dates are returned as text.
func NewMySQL(ctx context.Context, dsn string) (*SQLStore, error) {
	mcfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: parse dsn")
	}
	mcfg.MultiStatements = true
	mcfg.ParseTime = false
	dsn = mcfg.FormatDSN()

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: open")
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "mysql: ping")
	}
	return &SQLStore{db: conn, dialect: db.MySQL, driver: "mysql", dsn: dsn}, nil
}

// DB returns the underlying database handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Migrate applies the embedded migrations on a separate connection so the
// migrator never holds the store's own handle.
func (s *SQLStore) Migrate(_ context.Context) error {
	conn, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return eris.Wrapf(err, "%s: open migration connection", s.dialect)
	}
	return runMigrations(conn, s.dialect)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return eris.Wrapf(s.db.PingContext(ctx), "%s: ping", s.dialect)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: begin tx", s.dialect)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zap.L().Warn("store: rollback failed", zap.String("dialect", s.dialect.String()), zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "%s: commit tx", s.dialect)
	}
	return nil
}

const (
	sqliteDetailCatalog = `SELECT m.name, p.name FROM sqlite_master m JOIN pragma_table_info(m.name) p
WHERE m.type = 'table' AND m.name LIKE '%\_detalhes' ESCAPE '\' AND m.name <> 'fatura_detalhes'
ORDER BY m.name, p.cid`
	mysqlDetailCatalog = `SELECT table_name, column_name FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name LIKE '%\_detalhes' AND table_name <> 'fatura_detalhes'
ORDER BY table_name, ordinal_position`
)

func (s *SQLStore) DetailTables(ctx context.Context) ([]model.DetailTable, error) {
	query := sqliteDetailCatalog
	if s.dialect == db.MySQL {
		query = mysqlDetailCatalog
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: query detail catalog", s.dialect)
	}
	defer rows.Close()

	var cols []catalogColumn
	for rows.Next() {
		var c catalogColumn
		if err := rows.Scan(&c.table, &c.column); err != nil {
			return nil, eris.Wrapf(err, "%s: scan detail catalog", s.dialect)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "%s: iterate detail catalog", s.dialect)
	}
	return groupDetailTables(cols), nil
}

func (s *SQLStore) Categories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nome FROM categorias ORDER BY nome`)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list categories", s.dialect)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, eris.Wrapf(err, "%s: scan category", s.dialect)
		}
		out = append(out, c)
	}
	return out, eris.Wrapf(rows.Err(), "%s: iterate categories", s.dialect)
}

func (s *SQLStore) ListBills(ctx context.Context, m model.Module) ([]model.Bill, error) {
	cols := billColumns(m)
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		s.dialect.QuoteAndJoin(cols), s.dialect.Quote(m.Table), s.dialect.Quote(m.IDColumn))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list bills for %s", s.dialect, m.Name)
	}
	defer rows.Close()

	var out []model.Bill
	for rows.Next() {
		texts := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range texts {
			dest[i] = &texts[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "%s: scan bill for %s", s.dialect, m.Name)
		}
		vals := make([]*string, len(cols))
		for i, t := range texts {
			if t.Valid {
				v := t.String
				vals[i] = &v
			}
		}
		out = append(out, newBill(m, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "%s: iterate bills for %s", s.dialect, m.Name)
	}
	return out, nil
}

// sqlTx adapts a *sql.Tx to the Tx interface.
type sqlTx struct {
	tx      *sql.Tx
	dialect db.Dialect
}

func (t *sqlTx) CategoryID(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM categorias WHERE nome = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "%s: get category %q", t.dialect, name)
	}
	return id, true, nil
}

func (t *sqlTx) CreateCategory(ctx context.Context, name string) (int64, error) {
	insert := `INSERT INTO categorias (nome) VALUES (?) ON CONFLICT(nome) DO NOTHING`
	if t.dialect == db.MySQL {
		insert = `INSERT IGNORE INTO categorias (nome) VALUES (?)`
	}
	if _, err := t.tx.ExecContext(ctx, insert, name); err != nil {
		return 0, eris.Wrapf(err, "%s: create category %q", t.dialect, name)
	}
	id, ok, err := t.CategoryID(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, eris.Errorf("%s: category %q missing after insert", t.dialect, name)
	}
	return id, nil
}

func (t *sqlTx) InsertInvoice(ctx context.Context, inv *model.Invoice) (int64, error) {
	var issue any
	if inv.IssueDate != nil {
		issue = inv.IssueDate.Format(dateLayout)
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO faturas (unidade_id, categoria_id, data_emissao, data_vencimento, valor_total, arquivo_pdf, observacoes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.UnitID, inv.CategoryID, issue, inv.DueDate.Format(dateLayout), inv.Total.StringFixed(2), inv.SourceFile, inv.Notes,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "%s: insert invoice", t.dialect)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrapf(err, "%s: invoice id", t.dialect)
	}
	return id, nil
}

func (t *sqlTx) InsertTypedDetail(ctx context.Context, table string, invoiceID int64, cols []string, vals []any) error {
	query, err := t.dialect.InsertStatement(table, append([]string{"fatura_id"}, cols...))
	if err != nil {
		return eris.Wrapf(err, "%s: insert typed detail", t.dialect)
	}
	args := append([]any{invoiceID}, vals...)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "%s: insert into %s", t.dialect, table)
	}
	return nil
}

func (t *sqlTx) InsertGenericDetail(ctx context.Context, invoiceID int64, key, value string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO fatura_detalhes (fatura_id, chave, valor) VALUES (?, ?, ?)`,
		invoiceID, key, value,
	)
	return eris.Wrapf(err, "%s: insert detail %q", t.dialect, key)
}

// CountRows returns the number of rows in table. Used by the CLI and tests.
func (s *SQLStore) CountRows(ctx context.Context, table string) (int, error) {
	var n int
	query := "SELECT COUNT(*) FROM " + s.dialect.Quote(strings.TrimSpace(table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "%s: count %s", s.dialect, table)
	}
	return n, nil
}
