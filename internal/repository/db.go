package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Поддерживаемые драйверы
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ErrUnsupportedDriver - драйвер БД не поддерживается
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// schemas - DDL журнала сделок по диалектам
var schemas = map[string][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS trades (
			id VARCHAR(36) PRIMARY KEY,
			cycle_id VARCHAR(36) NOT NULL,
			pair VARCHAR(20) NOT NULL,
			type VARCHAR(4) NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			profit_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			reason VARCHAR(32) NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_cycle ON trades (cycle_id)`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			cycle_id TEXT NOT NULL,
			pair TEXT NOT NULL,
			type TEXT NOT NULL,
			price REAL NOT NULL,
			amount REAL NOT NULL,
			profit_pct REAL NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_cycle ON trades (cycle_id)`,
	},
}

// OpenDB открывает соединение и проверяет его
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if _, ok := schemas[driver]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// один писатель: SQLite блокирует файл целиком
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Migrate создаёт таблицы журнала, если их нет
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmts, ok := schemas[driver]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
