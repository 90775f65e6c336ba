// Package ledger provides the results ledger: a SQLite record of every
// proven Fortunate number with the statistics and sizer trace of its search.
package ledger

// CreateResultsTableSQL creates the results table. One row per index n; a
// later search for the same n replaces the row.
const CreateResultsTableSQL = `
CREATE TABLE IF NOT EXISTS results (
    n INTEGER PRIMARY KEY,
    fortunate INTEGER NOT NULL,
    elapsed_ns INTEGER NOT NULL,
    ranges_tested INTEGER NOT NULL,
    candidates_tested INTEGER NOT NULL,
    candidates_skipped INTEGER NOT NULL DEFAULT 0,
    workers INTEGER NOT NULL,
    run_id TEXT NOT NULL,
    primorial_digest TEXT NOT NULL,
    trace BLOB,
    created_at INTEGER NOT NULL
)`

// CreateResultsIndexesSQL creates secondary indexes.
var CreateResultsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_at)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	return append([]string{CreateResultsTableSQL}, CreateResultsIndexesSQL...)
}
