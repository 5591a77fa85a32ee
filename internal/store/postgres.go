package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for migrations
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-bills/internal/db"
	"github.com/sells-group/utility-bills/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	dsn     string
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, dsn: connString, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Migrate is unavailable without
// a connection string.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Migrate(_ context.Context) error {
	if s.dsn == "" {
		return eris.New("postgres: migrate requires a connection string")
	}
	conn, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return eris.Wrap(err, "postgres: open migration connection")
	}
	return runMigrations(conn, db.Postgres)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			zap.L().Warn("postgres: rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}
	return nil
}

const pgDetailCatalog = `SELECT table_name, column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name LIKE '%\_detalhes' AND table_name <> 'fatura_detalhes'
ORDER BY table_name, ordinal_position`

func (s *PostgresStore) DetailTables(ctx context.Context) ([]model.DetailTable, error) {
	rows, err := s.pool.Query(ctx, pgDetailCatalog)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query detail catalog")
	}
	defer rows.Close()

	var cols []catalogColumn
	for rows.Next() {
		var c catalogColumn
		if err := rows.Scan(&c.table, &c.column); err != nil {
			return nil, eris.Wrap(err, "postgres: scan detail catalog")
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate detail catalog")
	}
	return groupDetailTables(cols), nil
}

func (s *PostgresStore) Categories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, nome FROM categorias ORDER BY nome`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list categories")
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate categories")
}

func (s *PostgresStore) ListBills(ctx context.Context, m model.Module) ([]model.Bill, error) {
	cols := billColumns(m)
	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = db.Postgres.Quote(c) + "::text"
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(exprs, ", "), db.Postgres.Quote(m.Table), db.Postgres.Quote(m.IDColumn))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list bills for %s", m.Name)
	}
	defer rows.Close()

	var out []model.Bill
	for rows.Next() {
		texts := make([]pgtype.Text, len(cols))
		dest := make([]any, len(cols))
		for i := range texts {
			dest[i] = &texts[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan bill for %s", m.Name)
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
		return nil, eris.Wrapf(err, "postgres: iterate bills for %s", m.Name)
	}
	return out, nil
}

// pgTx adapts a pgx.Tx to the Tx interface.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CategoryID(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM categorias WHERE nome = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: get category %q", name)
	}
	return id, true, nil
}

func (t *pgTx) CreateCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO categorias (nome) VALUES ($1) ON CONFLICT (nome) DO UPDATE SET nome = EXCLUDED.nome RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: create category %q", name)
	}
	return id, nil
}

func (t *pgTx) InsertInvoice(ctx context.Context, inv *model.Invoice) (int64, error) {
	var issue *time.Time
	if inv.IssueDate != nil {
		d := *inv.IssueDate
		issue = &d
	}
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO faturas (unidade_id, categoria_id, data_emissao, data_vencimento, valor_total, arquivo_pdf, observacoes)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		inv.UnitID, inv.CategoryID, issue, inv.DueDate, inv.Total.StringFixed(2), inv.SourceFile, inv.Notes,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert invoice")
	}
	return id, nil
}

func (t *pgTx) InsertTypedDetail(ctx context.Context, table string, invoiceID int64, cols []string, vals []any) error {
	query, err := db.Postgres.InsertStatement(table, append([]string{"fatura_id"}, cols...))
	if err != nil {
		return eris.Wrap(err, "postgres: insert typed detail")
	}
	args := append([]any{invoiceID}, vals...)
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "postgres: insert into %s", table)
	}
	return nil
}

func (t *pgTx) InsertGenericDetail(ctx context.Context, invoiceID int64, key, value string) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO fatura_detalhes (fatura_id, chave, valor) VALUES ($1, $2, $3)`,
		invoiceID, key, value,
	)
	return eris.Wrapf(err, "postgres: insert detail %q", key)
}
