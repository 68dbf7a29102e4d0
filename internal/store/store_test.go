package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Create database
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	// Reopen database
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	// Verify we can query it
	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&count)
	if err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Open multiple times
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	// Final open should work
	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	// Verify schema is intact
	tables := []string{"jobs"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	// Try to open in non-existent directory
	path := "/nonexistent/dir/test.db"

	_, err := Open(path)
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	err := s.Close()
	if err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	// First close should succeed
	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}

	// Second close should not panic (though may error)
	// We just verify it doesn't panic
	_ = s.Close()
}

// Pragma tests

func TestPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
	}
	for _, tt := range tests {
		got, err := s.pragma(tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("%s = %q, expected %q", tt.name, got, tt.want)
		}
	}
}

// Schema table tests

func TestSchema_JobsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify table exists with expected columns
	columns := getTableColumns(t, s.db, "jobs")

	expected := []string{
		"job_id", "dag_name", "status", "queued_at",
		"started_at", "finished_at", "duration_ms", "error",
	}

	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("jobs table missing column %q", col)
		}
	}
}

// Index tests

func TestSchema_JobsIndexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	indexes := getTableIndexes(t, s.db, "jobs")

	if !contains(indexes, "idx_jobs_dag_name") {
		t.Error("jobs table missing index idx_jobs_dag_name")
	}
}

// Migration tests

func TestMigration_SetsUserVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, expected %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradesVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Simulate a database created before the dag_name index existed.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("create v0 schema: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if !contains(getTableIndexes(t, s.db, "jobs"), "idx_jobs_dag_name") {
		t.Error("migration did not add idx_jobs_dag_name")
	}
	if v, _ := s.pragma("user_version"); v != "1" {
		t.Errorf("user_version = %s after upgrade, expected 1", v)
	}
}

// Constraint tests

func TestConstraint_StatusCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	_, err = s.db.Exec(`
		INSERT INTO jobs (job_id, dag_name, status, queued_at)
		VALUES ('nightly-1', 'nightly', 'paused', '2026-10-19T08:00:00')
	`)
	if err == nil {
		t.Error("expected CHECK constraint violation for unknown status")
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
