package checkpoint

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its dialect and base FS in package state
var migrateMu sync.Mutex

// SQLBackend stores entries in a checkpoints table on sqlite3 or postgres (pgx)
type SQLBackend struct {
	db *sqlx.DB
}

type sqlEntry struct {
	UnitID      string    `db:"unit_id"`
	Status      string    `db:"status"`
	Payload     string    `db:"payload"`
	CompletedAt time.Time `db:"completed_at"`
}

// OpenSQL connects and migrates. driver is "sqlite3" or "pgx".
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLBackend, error) {
	dialect, err := gooseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(db.DB, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	return &SQLBackend{db: db}, nil
}

func gooseDialect(driver string) (string, error) {
	switch driver {
	case "sqlite3":
		return "sqlite3", nil
	case "pgx":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported checkpoint sql driver %q", driver)
	}
}

func migrate(db *sql.DB, dialect string) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (s *SQLBackend) Name() string { return "sql" }

func (s *SQLBackend) Append(ctx context.Context, e Entry) error {
	query := s.db.Rebind(`
		INSERT INTO checkpoints (unit_id, status, payload, completed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (unit_id) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, query, e.UnitID, e.Status, string(e.Payload), e.CompletedAt.UTC())
	return err
}

func (s *SQLBackend) Load(ctx context.Context) ([]Entry, error) {
	var rows []sqlEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT unit_id, status, payload, completed_at
		FROM checkpoints
		ORDER BY completed_at, unit_id`)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{
			UnitID:      r.UnitID,
			Status:      r.Status,
			Payload:     json.RawMessage(r.Payload),
			CompletedAt: r.CompletedAt,
		}
	}
	return entries, nil
}

func (s *SQLBackend) SavePartial(ctx context.Context, key string, snapshot []byte) error {
	query := s.db.Rebind(`
		INSERT INTO checkpoint_partials (scope_key, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (scope_key) DO UPDATE
		SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, query, key, string(snapshot), time.Now().UTC())
	return err
}

func (s *SQLBackend) LoadPartial(ctx context.Context, key string) ([]byte, error) {
	var snapshot string
	err := s.db.GetContext(ctx, &snapshot, s.db.Rebind(`SELECT snapshot FROM checkpoint_partials WHERE scope_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPartialNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(snapshot), nil
}

func (s *SQLBackend) Close() error {
	return s.db.Close()
}
