package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"gymroster/internal/adapters/http/perf"
)

func openTimedTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := openTestDB(t)
	if _, err := db.Exec("CREATE TABLE course_totals (course TEXT PRIMARY KEY, cash TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestQueryLabel(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT cash FROM course_totals WHERE course = ?", "SELECT course_totals"},
		{"insert into outbox (id) values (?)", "INSERT outbox"},
		{"UPDATE member SET phone = ?", "UPDATE member"},
		{"DELETE FROM draft WHERE session_id = ?", "DELETE draft"},
		{"CREATE TABLE IF NOT EXISTS x (id TEXT)", "CREATE"},
		{"BEGIN", "BEGIN"},
		{"   ", "EMPTY"},
	}
	for _, tt := range tests {
		if got := QueryLabel(tt.query); got != tt.want {
			t.Errorf("QueryLabel(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

// TestTimedDB_RecordsEveryCall verifies exec, query, and query-row each record one entry.
func TestTimedDB_RecordsEveryCall(t *testing.T) {
	db := openTimedTestDB(t)
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(db, collector)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO course_totals (course, cash) VALUES (?, ?)", "Yoga", "10"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	rows, err := tdb.QueryContext(ctx, "SELECT course, cash FROM course_totals")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	rows.Close()

	var cash string
	if err := tdb.QueryRowContext(ctx, "SELECT cash FROM course_totals WHERE course = ?", "Yoga").Scan(&cash); err != nil {
		t.Fatalf("QueryRowContext: %v", err)
	}
	if cash != "10" {
		t.Errorf("cash = %q, want 10", cash)
	}
	if collector.TotalRecorded() != 3 {
		t.Errorf("TotalRecorded = %d, want 3", collector.TotalRecorded())
	}

	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	found := false
	for _, q := range snap.SlowestQueries {
		if q.Path == "SELECT course_totals" && q.Count == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected SELECT course_totals grouped twice, got %+v", snap.SlowestQueries)
	}
}

// TestTimedDB_ErrorPassthrough verifies SQL errors are returned unchanged and still timed.
func TestTimedDB_ErrorPassthrough(t *testing.T) {
	db := openTimedTestDB(t)
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(db, collector)

	if _, err := tdb.ExecContext(context.Background(), "INSERT INTO nonexistent_table VALUES (?)", 1); err == nil {
		t.Fatal("expected error from invalid SQL, got nil")
	}
	var v string
	if err := tdb.QueryRowContext(context.Background(), "SELECT cash FROM course_totals WHERE course = ?", "none").Scan(&v); err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
	if collector.TotalRecorded() != 2 {
		t.Errorf("TotalRecorded = %d, want 2", collector.TotalRecorded())
	}
}

// TestTimedDB_NilCollector verifies TimedDB works without a collector.
func TestTimedDB_NilCollector(t *testing.T) {
	db := openTimedTestDB(t)
	tdb := NewTimedDB(db, nil)

	tx, err := tdb.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := tx.Exec("INSERT INTO course_totals (course, cash) VALUES ('Yoga', '1')"); err != nil {
		t.Fatalf("exec in tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestTimedDB_WithSlowThreshold(t *testing.T) {
	tdb := NewTimedDB(nil, nil)
	if tdb.threshold != DefaultSlowQuery {
		t.Fatalf("threshold = %v, want default", tdb.threshold)
	}
	if got := tdb.WithSlowThreshold(time.Second).threshold; got != time.Second {
		t.Errorf("threshold = %v, want 1s", got)
	}
	if got := tdb.WithSlowThreshold(0).threshold; got != time.Second {
		t.Errorf("zero threshold replaced the configured one: %v", got)
	}
}
