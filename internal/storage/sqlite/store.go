// Package sqlite persists the audit log and balance snapshots in SQLite.
// Neither is on the settlement path: the audit writer batches into
// bets_log, and balances are loaded at startup and written back
// periodically.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/lemonroulette/internal/audit"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store is a SQLite-backed audit and balance store.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer connection avoids SQLITE_BUSY between the audit writer and
	// snapshot saves.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendBets inserts a batch of audit records in one transaction.
func (s *Store) AppendBets(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bets_log (
		   round_id, scope, bet_id, user_key, username, stake, bet_type,
		   target, result_number, result_color, payout, settled_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.RoundID, r.Scope, r.BetID, r.PlayerKey, r.PlayerName, r.Stake, r.Kind,
			r.Target, r.OutcomeNumber, r.OutcomeColor, r.Payout, toMillis(r.SettledAt),
		); err != nil {
			return fmt.Errorf("insert bet %s: %w", r.BetID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentBets returns up to limit records for scope, newest first. An empty
// scope returns records from every scope.
func (s *Store) RecentBets(ctx context.Context, scope string, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT round_id, scope, bet_id, user_key, username, stake, bet_type,
	                 target, result_number, result_color, payout, settled_at
	          FROM bets_log`
	args := []any{}
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bets: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var r audit.Record
		var settledAt int64
		if err := rows.Scan(&r.RoundID, &r.Scope, &r.BetID, &r.PlayerKey, &r.PlayerName, &r.Stake, &r.Kind,
			&r.Target, &r.OutcomeNumber, &r.OutcomeColor, &r.Payout, &settledAt); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		r.SettledAt = fromMillis(settledAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadBalances reads the last saved balance snapshot.
func (s *Store) LoadBalances(ctx context.Context) (map[string]int64, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT user_key, balance FROM users`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var balance int64
		if err := rows.Scan(&key, &balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out[key] = balance
	}
	return out, rows.Err()
}

// SaveBalances upserts a snapshot of balances.
func (s *Store) SaveBalances(ctx context.Context, balances map[string]int64) error {
	if len(balances) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO users (user_key, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_key) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := toMillis(time.Now())
	for key, balance := range balances {
		if _, err := stmt.ExecContext(ctx, key, balance, now); err != nil {
			return fmt.Errorf("save balance %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ audit.Store = (*Store)(nil)
