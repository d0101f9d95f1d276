// Package journal keeps a local record of posted transactions and of
// their outcome once resolved.
//
// A post whose resolution timed out stays pending in the journal, so
// it can be queried again later by reference, possibly from another
// process.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/types"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Outcome statuses.
const (
	StatusPending    = "pending"
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusRejected   = "rejected"
)

// ErrNotFound is returned for references the journal does not hold.
var ErrNotFound = errors.New("moka journal: unknown reference")

// Entry is one posted transaction.
type Entry struct {
	Reference  types.TransactionReference
	Kind       string
	Caller     string
	Request    types.Request
	PostedAt   time.Time
	Status     string
	Response   types.Response
	Message    string
	ResolvedAt time.Time
}

// Journal is a SQLite-backed record of posted transactions. It is
// safe for concurrent use.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal at path. The database runs in WAL
// mode with a single connection, so writes never contend.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("moka journal: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("moka journal: connect %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("moka journal: %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("moka journal: schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("moka journal: set user_version: %w", err)
	}
	return nil
}

// RecordPosted stores a posted request. Recording the same reference
// twice keeps the first record.
func (j *Journal) RecordPosted(ctx context.Context, ref types.TransactionReference, req types.Request) error {
	data, err := types.MarshalRequest(req)
	if err != nil {
		return fmt.Errorf("moka journal: record %s: %w", ref, err)
	}
	var caller string
	if sr, ok := req.(types.SignedRequest); ok {
		caller = sr.NonInitial().Caller.String()
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO transactions (reference, kind, caller, request, posted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(reference) DO NOTHING
	`, ref.String(), req.Kind().String(), caller, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("moka journal: record %s: %w", ref, err)
	}
	return nil
}

// RecordOutcome stores the terminal outcome of a pending transaction:
// a response and the error it resolved to, if any. Indeterminate
// outcomes such as poll timeouts are ignored, and so is a transaction
// already resolved.
func (j *Journal) RecordOutcome(ctx context.Context, ref types.TransactionReference, resp types.Response, outcome error) error {
	status := StatusSuccessful
	var message string
	if outcome != nil {
		message = outcome.Error()
		if _, ok := moka.IsFailed(outcome); ok {
			status = StatusFailed
		} else if _, ok := moka.IsRejected(outcome); ok {
			status = StatusRejected
		} else {
			return nil
		}
	}
	var data []byte
	if resp != nil {
		var err error
		if data, err = types.MarshalResponse(resp); err != nil {
			return fmt.Errorf("moka journal: outcome %s: %w", ref, err)
		}
	}
	_, err := j.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, response = ?, message = ?, resolved_at = ?
		WHERE reference = ? AND status = ?
	`, status, data, message, time.Now().UnixMilli(), ref.String(), StatusPending)
	if err != nil {
		return fmt.Errorf("moka journal: outcome %s: %w", ref, err)
	}
	return nil
}

const selectEntry = `
	SELECT reference, kind, caller, request, posted_at, status, response, message, resolved_at
	FROM transactions
`

// Get returns the entry of ref.
func (j *Journal) Get(ctx context.Context, ref types.TransactionReference) (Entry, error) {
	row := j.db.QueryRowContext(ctx, selectEntry+` WHERE reference = ?`, ref.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w %s", ErrNotFound, ref)
	}
	return e, err
}

// Pending returns the unresolved entries, oldest first.
func (j *Journal) Pending(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, selectEntry+` WHERE status = ? ORDER BY posted_at, rowid`, StatusPending)
}

// Recent returns at most limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx, selectEntry+` ORDER BY posted_at DESC, rowid DESC LIMIT ?`, limit)
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("moka journal: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("moka journal: query: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e          Entry
		ref        string
		request    []byte
		response   []byte
		postedAt   int64
		resolvedAt sql.NullInt64
	)
	if err := s.Scan(&ref, &e.Kind, &e.Caller, &request, &postedAt, &e.Status, &response, &e.Message, &resolvedAt); err != nil {
		return Entry{}, err
	}
	e.Reference = types.NewTransactionReference(ref)
	e.PostedAt = time.UnixMilli(postedAt)
	if resolvedAt.Valid {
		e.ResolvedAt = time.UnixMilli(resolvedAt.Int64)
	}
	req, err := types.UnmarshalRequest(request)
	if err != nil {
		return Entry{}, fmt.Errorf("moka journal: request of %s: %w", ref, err)
	}
	e.Request = req
	if len(response) > 0 {
		if e.Response, err = types.UnmarshalResponse(response); err != nil {
			return Entry{}, fmt.Errorf("moka journal: response of %s: %w", ref, err)
		}
	}
	return e, nil
}
