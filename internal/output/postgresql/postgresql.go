// Package postgresql stores extracted actions in PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/decentium/decentium-go/internal/models"
	"github.com/decentium/decentium-go/internal/output"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ output.OutputHandler = (*PostgresOutputHandler)(nil)

type PostgresOutputHandler struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresOutputHandler connects to dsn and applies pending migrations.
func NewPostgresOutputHandler(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresOutputHandler, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db, logger), nil
}

// NewWithDB uses an already open database whose schema is up to date.
func NewWithDB(db *sql.DB, logger *slog.Logger) *PostgresOutputHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresOutputHandler{db: db, logger: logger.With("component", "postgres-output")}
}

// Migrate brings the schema to the latest version.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

const (
	upsertBlock = `INSERT INTO blocks (block_num, tx_count) VALUES ($1, $2)
ON CONFLICT (block_num) DO UPDATE SET tx_count = EXCLUDED.tx_count, ingested_at = now()`
	deleteActions = `DELETE FROM actions WHERE block_num = $1`
	insertAction  = `INSERT INTO actions (block_num, transaction_id, action_index, account, name, auth, data)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	selectLatest  = `SELECT COALESCE(MAX(block_num), 0) FROM blocks`
	selectMissing = `SELECT s.n FROM generate_series(
	(SELECT MIN(block_num) FROM blocks), (SELECT MAX(block_num) FROM blocks)) AS s(n)
WHERE NOT EXISTS (SELECT 1 FROM blocks b WHERE b.block_num = s.n) ORDER BY s.n`
)

// WriteBlock replaces the block's actions in one transaction.
func (h *PostgresOutputHandler) WriteBlock(ctx context.Context, block *models.Block) (err error) {
	records, err := output.Records(block)
	if err != nil {
		return fmt.Errorf("failed to flatten block %d: %w", block.Number, err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				h.logger.Warn("Failed to roll back", "block", block.Number, "error", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, upsertBlock, block.Number, len(block.Transactions)); err != nil {
		return fmt.Errorf("failed to upsert block %d: %w", block.Number, err)
	}
	if _, err = tx.ExecContext(ctx, deleteActions, block.Number); err != nil {
		return fmt.Errorf("failed to clear actions of block %d: %w", block.Number, err)
	}
	for _, r := range records {
		var auth []byte
		auth, err = json.Marshal(r.Authorization)
		if err != nil {
			return fmt.Errorf("failed to marshal authorization: %w", err)
		}
		if _, err = tx.ExecContext(ctx, insertAction,
			r.BlockNum, r.TransactionID, r.ActionIndex, r.Account, r.Name, string(auth), nullableJSON(r.Data),
		); err != nil {
			return fmt.Errorf("failed to insert action %s#%d: %w", r.TransactionID, r.ActionIndex, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit block %d: %w", block.Number, err)
	}
	return nil
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return string(b)
}

func (h *PostgresOutputHandler) GetLatestBlock(ctx context.Context) (uint32, error) {
	var latest int64
	if err := h.db.QueryRowContext(ctx, selectLatest).Scan(&latest); err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return uint32(latest), nil
}

func (h *PostgresOutputHandler) GetMissingBlockIds(ctx context.Context) ([]uint32, error) {
	rows, err := h.db.QueryContext(ctx, selectMissing)
	if err != nil {
		return nil, fmt.Errorf("failed to get missing blocks: %w", err)
	}
	defer rows.Close()

	var missing []uint32
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan missing block: %w", err)
		}
		missing = append(missing, uint32(n))
	}
	return missing, rows.Err()
}

func (h *PostgresOutputHandler) Close() error {
	return h.db.Close()
}
