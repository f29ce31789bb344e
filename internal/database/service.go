/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Service struct {
	db      *sql.DB
	journal *JournalService
	now     func() time.Time
}

// queryer is satisfied by both *sql.DB and *sql.Tx. Reads issued while a
// transaction is open must go through the transaction: with a single
// connection pool the outer handle would block forever.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := newService(db)
	if err := service.initSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func newService(db *sql.DB) *Service {
	return &Service{
		db:      db,
		journal: NewJournalService(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := `
	-- Secondary chain addresses attached to a canonical address
	CREATE TABLE IF NOT EXISTS linked_addresses (
		id TEXT PRIMARY KEY,
		canonical_address TEXT NOT NULL,
		chain TEXT NOT NULL,
		linked_address TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		UNIQUE(canonical_address, chain)
	);

	CREATE TABLE IF NOT EXISTS lend_deposits (
		txn_hash TEXT PRIMARY KEY,
		chain TEXT NOT NULL,
		amount TEXT NOT NULL,
		lender_address TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lend_deposits_lender ON lend_deposits(lender_address);
	CREATE INDEX IF NOT EXISTS idx_lend_deposits_chain ON lend_deposits(chain);

	CREATE TABLE IF NOT EXISTS collateral_deposits (
		tx_hash TEXT PRIMARY KEY,
		chain TEXT NOT NULL,
		amount TEXT NOT NULL,
		owner_address TEXT NOT NULL,
		is_locked BOOLEAN NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_collateral_owner ON collateral_deposits(owner_address);

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		borrower_address TEXT NOT NULL,
		collateral_tx_hash TEXT NOT NULL REFERENCES collateral_deposits(tx_hash),
		borrow_chain TEXT NOT NULL,
		borrow_amount TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		loan_term_months INTEGER NOT NULL,
		interest_amount TEXT NOT NULL,
		total_repayment_amount TEXT NOT NULL,
		start_time TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('active', 'repaid', 'liquidated')),
		repayment_tx_hash TEXT,
		repayment_chain TEXT,
		closed_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	-- At most one active loan per collateral deposit
	CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_active_collateral
		ON loans(collateral_tx_hash) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans(borrower_address);
	CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);

	-- Audit trail. tx_hash is NULL for events without an on-chain transfer.
	CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		tx_hash TEXT UNIQUE,
		chain TEXT NOT NULL,
		address TEXT NOT NULL,
		amount TEXT NOT NULL,
		loan_id TEXT,
		collateral_tx_hash TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_events_address ON ledger_events(address);
	CREATE INDEX IF NOT EXISTS idx_ledger_events_created_at ON ledger_events(created_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return s.journal.InitSchema(ctx, s.db)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
		}
	}
	return t.UTC(), nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s '%s': %w", field, value, err)
	}
	return d, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// inClause builds "(?, ?, ...)" and the matching args
func inClause(values []string) (string, []interface{}) {
	placeholders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return "(" + strings.Join(placeholders, ", ") + ")", args
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

func normalizeAll(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		n := models.NormalizeAddress(a)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
