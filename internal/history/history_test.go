package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

// TestOpenCreatesFile verifies database file and parent directory creation
func TestOpenCreatesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Database file not created at %s: %v", dbPath, err)
	}

	var journalMode string
	if err := db.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var version int
	if err := db.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("Failed to query schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected schema version 1, got %d", version)
	}
}

// TestReopenKeepsRecords verifies schema creation is idempotent
func TestReopenKeepsRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.Record(Record{Path: "/tmp/a", Strategy: "synchronous"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	db.Close()

	db, err = Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	records, err := db.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record after reopen, got %d", len(records))
	}
}

// TestRecordFields verifies what is written comes back
func TestRecordFields(t *testing.T) {
	db := openTestDB(t)

	ts := time.Now().Add(-time.Minute).Truncate(time.Second)
	err := db.Record(Record{
		Timestamp:     ts,
		Path:          "rel/file.txt",
		CanonicalPath: "/work/rel/file.txt",
		Strategy:      "thread-pooled",
		Duration:      1500 * time.Millisecond,
		ErrorMessage:  "lstat /work/rel/file.txt: no such file or directory",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	records, err := db.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.Status != StatusError {
		t.Errorf("Status = %q, expected %q", r.Status, StatusError)
	}
	if r.Path != "rel/file.txt" || r.CanonicalPath != "/work/rel/file.txt" {
		t.Errorf("paths = %q / %q", r.Path, r.CanonicalPath)
	}
	if r.Strategy != "thread-pooled" {
		t.Errorf("Strategy = %q", r.Strategy)
	}
	if r.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, expected 1.5s", r.Duration)
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, expected %v", r.Timestamp, ts)
	}
	if r.ErrorMessage == "" {
		t.Error("ErrorMessage lost")
	}
}

// TestQueryMethods verifies the filtered queries
func TestQueryMethods(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	for i := 0; i < 10; i++ {
		r := Record{
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
			Path:      fmt.Sprintf("/data/logs/file%d.log", i),
			Strategy:  "process-pooled",
			Duration:  time.Duration(i) * time.Millisecond,
		}
		if i%3 == 0 {
			r.ErrorMessage = "permission denied"
			r.Strategy = "synchronous"
		}
		if err := db.Record(r); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := db.Record(Record{Timestamp: now.AddDate(0, 0, -40), Path: "/old/file"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	recent, err := db.Recent(3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 || recent[0].Path != "/data/logs/file0.log" {
		t.Errorf("Recent(3) = %+v", recent)
	}

	failed, err := db.ByStatus(StatusError, 100)
	if err != nil {
		t.Fatalf("ByStatus failed: %v", err)
	}
	if len(failed) != 4 {
		t.Errorf("ByStatus(error) returned %d records, expected 4", len(failed))
	}

	byPath, err := db.ByPath("/data/logs/%", 100)
	if err != nil {
		t.Fatalf("ByPath failed: %v", err)
	}
	if len(byPath) != 10 {
		t.Errorf("ByPath returned %d records, expected 10", len(byPath))
	}

	ranged, err := db.ByDateRange(now.Add(-150*time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ByDateRange failed: %v", err)
	}
	if len(ranged) != 3 {
		t.Errorf("ByDateRange returned %d records, expected 3", len(ranged))
	}

	stats, err := db.Stats(7)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 10 || stats.Failed != 4 || stats.Succeeded != 6 {
		t.Errorf("Stats = %+v", stats)
	}
	if stats.ByStrategy["synchronous"] != 4 || stats.ByStrategy["process-pooled"] != 6 {
		t.Errorf("ByStrategy = %v", stats.ByStrategy)
	}
	if stats.AverageDuration <= 0 {
		t.Errorf("AverageDuration = %v, expected positive", stats.AverageDuration)
	}

	removed, err := db.DeleteOldRecords(30)
	if err != nil {
		t.Fatalf("DeleteOldRecords failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteOldRecords removed %d, expected 1", removed)
	}

	dbStats, err := db.DatabaseStats()
	if err != nil {
		t.Fatalf("DatabaseStats failed: %v", err)
	}
	if dbStats.TotalRecords != 10 {
		t.Errorf("TotalRecords = %d, expected 10", dbStats.TotalRecords)
	}
	if dbStats.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, expected positive", dbStats.SizeBytes)
	}
	if dbStats.Oldest.IsZero() || dbStats.Newest.Before(dbStats.Oldest) {
		t.Errorf("time range = %v .. %v", dbStats.Oldest, dbStats.Newest)
	}

	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}

// TestConcurrentRecord verifies writes from many goroutines all land
func TestConcurrentRecord(t *testing.T) {
	db := openTestDB(t)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := db.Record(Record{Path: fmt.Sprintf("/w%d/%d", w, i), Strategy: "thread-pooled"}); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Record failed: %v", err)
	}

	stats, err := db.DatabaseStats()
	if err != nil {
		t.Fatalf("DatabaseStats failed: %v", err)
	}
	if stats.TotalRecords != writers*perWriter {
		t.Errorf("TotalRecords = %d, expected %d", stats.TotalRecords, writers*perWriter)
	}
}

// TestOpenError verifies an unusable path is reported
func TestOpenError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}

	if _, err := Open(filepath.Join(blocker, "history.db")); err == nil {
		t.Error("Expected error opening database beneath a regular file")
	}
}
