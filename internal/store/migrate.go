package store

import (
	"database/sql"
	"embed"
	"errors"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-bills/internal/db"
)

//go:embed migrations
var migrationsFS embed.FS

// runMigrations applies the embedded migrations for dialect over conn and
// closes conn when done.
func runMigrations(conn *sql.DB, dialect db.Dialect) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+dialect.String())
	if err != nil {
		conn.Close()
		return eris.Wrapf(err, "%s: open migrations", dialect)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		conn.Close()
		return eris.Wrapf(err, "%s: create migration source", dialect)
	}

	var driver database.Driver
	switch dialect {
	case db.SQLite:
		driver, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	case db.MySQL:
		driver, err = migratemysql.WithInstance(conn, &migratemysql.Config{})
	default:
		driver, err = migratepgx.WithInstance(conn, &migratepgx.Config{})
	}
	if err != nil {
		conn.Close()
		return eris.Wrapf(err, "%s: create migration driver", dialect)
	}

	m, err := migrate.NewWithInstance("iofs", source, dialect.String(), driver)
	if err != nil {
		conn.Close()
		return eris.Wrapf(err, "%s: create migrator", dialect)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return eris.Wrapf(err, "%s: apply migrations", dialect)
	}
	version, dirty, _ := m.Version()
	zap.L().Info("migrations applied",
		zap.String("dialect", dialect.String()),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}
