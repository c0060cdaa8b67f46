// Package store persists market books in SQLite so sessions can be replayed as backtests.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

// ErrStopReplay ends a replay early without an error.
var ErrStopReplay = errors.New("stop replay")

// BookStore is an append-only log of market books.
type BookStore struct {
	db *sql.DB
}

// MarketSummary describes the books stored for one market.
type MarketSummary struct {
	MarketID   string
	MarketType string
	Books      int
	First      int64
	Last       int64
}

// Open opens or creates the store at path with WAL journaling.
func Open(path string) (*BookStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer keeps inserts ordered by id
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS market_books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			market_id TEXT NOT NULL,
			market_type TEXT NOT NULL,
			publish_ms INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_market_books_market ON market_books (market_id, id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create market_books table: %w", err)
	}
	return &BookStore{db: db}, nil
}

// Close releases the database handle.
func (s *BookStore) Close() error { return s.db.Close() }

// Append stores one book.
func (s *BookStore) Append(ctx context.Context, book signal.MarketBook) error {
	payload, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO market_books (market_id, market_type, publish_ms, payload) VALUES (?, ?, ?, ?)",
		book.Meta.MarketID, book.Meta.MarketType, book.PublishTime.UnixMilli(), payload,
	)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// Replay hands every stored book to fn in insertion order, optionally restricted to the given
// markets. Returning ErrStopReplay from fn ends the replay cleanly.
func (s *BookStore) Replay(ctx context.Context, fn func(signal.MarketBook) error, markets ...string) error {
	query := "SELECT payload FROM market_books ORDER BY id ASC"
	args := make([]any, 0, len(markets))
	if len(markets) > 0 {
		query = "SELECT payload FROM market_books WHERE market_id IN (?" + strings.Repeat(",?", len(markets)-1) + ") ORDER BY id ASC"
		for _, m := range markets {
			args = append(args, m)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan book: %w", err)
		}
		var book signal.MarketBook
		if err := json.Unmarshal(payload, &book); err != nil {
			return fmt.Errorf("decode book: %w", err)
		}
		if err := fn(book); err != nil {
			if errors.Is(err, ErrStopReplay) {
				return nil
			}
			return err
		}
	}
	return rows.Err()
}

// Markets lists the stored markets in the order they were first seen.
func (s *BookStore) Markets(ctx context.Context) ([]MarketSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, market_type, COUNT(*), MIN(publish_ms), MAX(publish_ms)
		FROM market_books
		GROUP BY market_id, market_type
		ORDER BY MIN(id) ASC`)
	if err != nil {
		return nil, fmt.Errorf("query markets: %w", err)
	}
	defer rows.Close()

	var out []MarketSummary
	for rows.Next() {
		var m MarketSummary
		if err := rows.Scan(&m.MarketID, &m.MarketType, &m.Books, &m.First, &m.Last); err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
