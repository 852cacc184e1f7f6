package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// SeedRow is one words-table row for SeedSQLite.
type SeedRow struct {
	Word      string
	Frame     int
	Keypoints string
}

// SeedSQLite creates a fresh sqlite database under tb's temp directory with
// the words schema and the given rows, returning its DSN. The database is
// removed with the temp directory when the test ends.
func SeedSQLite(tb testing.TB, rows []SeedRow) string {
	tb.Helper()

	dsn := filepath.Join(tb.TempDir(), "keypoints.db")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		tb.Fatalf("open seed handle: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE words (
		word         TEXT    NOT NULL,
		frame_number INTEGER NOT NULL,
		keypoints    TEXT    NOT NULL,
		PRIMARY KEY (word, frame_number)
	)`)
	if err != nil {
		tb.Fatalf("create schema: %v", err)
	}

	for _, row := range rows {
		_, err := db.Exec(
			"INSERT INTO words (word, frame_number, keypoints) VALUES (?, ?, ?)",
			row.Word, row.Frame, row.Keypoints)
		if err != nil {
			tb.Fatalf("seed row %s/%d: %v", row.Word, row.Frame, err)
		}
	}

	return dsn
}
