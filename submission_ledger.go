package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const submissionLedgerQueueDepth = 64

type submissionStatus string

const (
	submissionAccepted submissionStatus = "accepted"
	submissionRejected submissionStatus = "rejected"
	submissionFailed   submissionStatus = "failed"
	submissionStale    submissionStatus = "stale"
)

type submissionRecord struct {
	At             time.Time        `json:"at"`
	Height         uint64           `json:"height"`
	AccountID      uint64           `json:"account_id"`
	Nonce          uint64           `json:"nonce"`
	Deadline       uint64           `json:"deadline"`
	ServerDeadline uint64           `json:"server_deadline,omitempty"`
	Status         submissionStatus `json:"status"`
	Attempts       int              `json:"attempts"`
	Error          string           `json:"error,omitempty"`
}

type ledgerEntry struct {
	rec  submissionRecord
	done chan struct{}
}

// submissionLedger keeps every submission outcome in SQLite. Inserts go
// through one writer goroutine so submitters never wait on disk.
type submissionLedger struct {
	db        *sql.DB
	ch        chan ledgerEntry
	closing   chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func ledgerPath(dataDir string) string {
	return filepath.Join(dataDir, "state", "ledger.db")
}

func openSubmissionLedger(dataDir string) (*submissionLedger, error) {
	path := ledgerPath(dataDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at_unix_ms INTEGER NOT NULL,
			height INTEGER NOT NULL,
			account_id INTEGER NOT NULL,
			nonce INTEGER NOT NULL,
			deadline INTEGER NOT NULL,
			server_deadline INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 1,
			error TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS submissions_height_idx ON submissions (height)`); err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &submissionLedger{
		db:      db,
		ch:      make(chan ledgerEntry, submissionLedgerQueueDepth),
		closing: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.writer()
	return l, nil
}

func (l *submissionLedger) writer() {
	defer l.wg.Done()
	for {
		select {
		case entry := <-l.ch:
			l.write(entry)
		case <-l.closing:
			for {
				select {
				case entry := <-l.ch:
					l.write(entry)
				default:
					return
				}
			}
		}
	}
}

// SQLite integers are signed; uint64 values are stored bit-for-bit.
func (l *submissionLedger) write(entry ledgerEntry) {
	if entry.done != nil {
		close(entry.done)
		return
	}
	r := entry.rec
	if _, err := l.db.Exec(
		`INSERT INTO submissions (created_at_unix_ms, height, account_id, nonce, deadline, server_deadline, status, attempts, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.At.UnixMilli(), int64(r.Height), int64(r.AccountID), int64(r.Nonce),
		int64(r.Deadline), int64(r.ServerDeadline), string(r.Status), r.Attempts, r.Error,
	); err != nil {
		logger.Warn("submission ledger insert", "error", err, "height", r.Height, "nonce", r.Nonce)
	}
}

// Record queues rec for insertion. A nil ledger discards it.
func (l *submissionLedger) Record(rec submissionRecord) {
	if l == nil {
		return
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	select {
	case l.ch <- ledgerEntry{rec: rec}:
	case <-l.closing:
	}
}

// Flush returns once every record queued before the call is written.
func (l *submissionLedger) Flush(ctx context.Context) error {
	if l == nil {
		return nil
	}
	done := make(chan struct{})
	select {
	case l.ch <- ledgerEntry{done: done}:
	case <-l.closing:
		return errors.New("submission ledger closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recent returns up to n records, newest first.
func (l *submissionLedger) Recent(ctx context.Context, n int) ([]submissionRecord, error) {
	if l == nil || n <= 0 {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT created_at_unix_ms, height, account_id, nonce, deadline, server_deadline, status, attempts, error
		 FROM submissions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []submissionRecord
	for rows.Next() {
		var (
			atMs                                               int64
			height, accountID, nonce, deadline, serverDeadline int64
			status                                             string
			rec                                                submissionRecord
		)
		if err := rows.Scan(&atMs, &height, &accountID, &nonce, &deadline, &serverDeadline, &status, &rec.Attempts, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		rec.At = time.UnixMilli(atMs)
		rec.Height = uint64(height)
		rec.AccountID = uint64(accountID)
		rec.Nonce = uint64(nonce)
		rec.Deadline = uint64(deadline)
		rec.ServerDeadline = uint64(serverDeadline)
		rec.Status = submissionStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *submissionLedger) Close() error {
	if l == nil {
		return nil
	}
	var err error
	l.closeOnce.Do(func() {
		close(l.closing)
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}
