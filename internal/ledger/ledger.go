package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/search"
)

// Ledger stores proven results.
type Ledger interface {
	// Record inserts or replaces the entry for entry.Index.
	Record(ctx context.Context, entry *Entry) error

	// Get returns the entry for n, or a RESULT_NOT_FOUND error.
	Get(ctx context.Context, n int) (*Entry, error)

	// List returns the entries with from <= n <= to ordered by n.
	List(ctx context.Context, from, to int) ([]*Entry, error)

	// Close closes the underlying database.
	Close() error
}

// Entry is one proven result.
type Entry struct {
	Index             int
	Fortunate         uint64
	Elapsed           time.Duration
	RangesTested      uint64
	CandidatesTested  uint64
	CandidatesSkipped uint64
	Workers           int
	RunID             string
	PrimorialDigest   string
	Trace             []search.BatchObservation
	CreatedAt         time.Time
}

// EntryFromOutcome builds a ledger entry from a finished search.
func EntryFromOutcome(out *search.Outcome) *Entry {
	return &Entry{
		Index:             out.Index,
		Fortunate:         out.Offset,
		Elapsed:           out.Elapsed,
		RangesTested:      out.Stats.RangesTested,
		CandidatesTested:  out.Stats.CandidatesTested,
		CandidatesSkipped: out.Stats.CandidatesSkipped,
		Workers:           out.Workers,
		RunID:             out.RunID,
		PrimorialDigest:   Fingerprint(out.Primorial),
		Trace:             out.Trace,
		CreatedAt:         time.Now(),
	}
}

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // Write-only lock

	insertStmt *sql.Stmt
}

// Open opens or creates the ledger database at dbPath.
func Open(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &SQLiteLedger{db: db, dbPath: dbPath}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to initialize schema: %w", err)
	}

	insertStmt, err := db.Prepare(`
		INSERT OR REPLACE INTO results (
			n, fortunate, elapsed_ns,
			ranges_tested, candidates_tested, candidates_skipped,
			workers, run_id, primorial_digest, trace, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to prepare insert statement: %w", err)
	}
	l.insertStmt = insertStmt

	return l, nil
}

func (l *SQLiteLedger) initSchema() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Record implements Ledger.
func (l *SQLiteLedger) Record(ctx context.Context, entry *Entry) error {
	trace, err := EncodeTrace(entry.Trace)
	if err != nil {
		return errors.NewLedgerError(errors.CodeLedgerWriteFailed, "failed to encode trace", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.insertStmt.ExecContext(ctx,
		entry.Index, int64(entry.Fortunate), int64(entry.Elapsed),
		int64(entry.RangesTested), int64(entry.CandidatesTested), int64(entry.CandidatesSkipped),
		entry.Workers, entry.RunID, entry.PrimorialDigest, trace, createdAt.UnixNano(),
	)
	if err != nil {
		return errors.NewLedgerError(errors.CodeLedgerWriteFailed,
			fmt.Sprintf("failed to record F(%d)", entry.Index), err)
	}
	return nil
}

const selectColumns = `
	SELECT n, fortunate, elapsed_ns,
		ranges_tested, candidates_tested, candidates_skipped,
		workers, run_id, primorial_digest, trace, created_at
	FROM results`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var fortunate, elapsed, ranges, candidates, skipped, createdAt int64
	var trace []byte

	if err := row.Scan(
		&e.Index, &fortunate, &elapsed,
		&ranges, &candidates, &skipped,
		&e.Workers, &e.RunID, &e.PrimorialDigest, &trace, &createdAt,
	); err != nil {
		return nil, err
	}

	decoded, err := DecodeTrace(trace)
	if err != nil {
		return nil, err
	}
	e.Fortunate = uint64(fortunate)
	e.Elapsed = time.Duration(elapsed)
	e.RangesTested = uint64(ranges)
	e.CandidatesTested = uint64(candidates)
	e.CandidatesSkipped = uint64(skipped)
	e.Trace = decoded
	e.CreatedAt = time.Unix(0, createdAt)
	return &e, nil
}

// Get implements Ledger.
func (l *SQLiteLedger) Get(ctx context.Context, n int) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+" WHERE n = ?", n)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewLedgerError(errors.CodeResultNotFound, fmt.Sprintf("no result for F(%d)", n), nil)
	}
	if err != nil {
		if errors.GetCategory(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("ledger: failed to scan result: %w", err)
	}
	return entry, nil
}

// List implements Ledger.
func (l *SQLiteLedger) List(ctx context.Context, from, to int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectColumns+" WHERE n BETWEEN ? AND ? ORDER BY n", from, to)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to query results: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: failed to scan result: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: failed to iterate results: %w", err)
	}
	return entries, nil
}

// Close implements Ledger.
func (l *SQLiteLedger) Close() error {
	if l.insertStmt != nil {
		l.insertStmt.Close()
	}
	return l.db.Close()
}
