package store

import (
	"context"
	"database/sql"
	"errors"
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

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM consumed_slots").Scan(&count)
	if err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{
		"config", "peers", "app_state", "ledger", "consumed_slots",
		"verified_payloads", "outbound_messages", "external_calls",
		"deposit_events", "failed_messages", "inbound_log",
	}
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
	path := "/nonexistent/dir/test.db"

	_, err := Open(path)
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// The single pooled connection keeps the in-memory schema alive.
	for i := 0; i < 3; i++ {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM ledger").Scan(&count); err != nil {
			t.Fatalf("query %d failed: %v", i, err)
		}
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

	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}

	// Second close should not panic (though may error)
	_ = s.Close()
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := createTestStore(t)
	// ON = 1
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

// Schema table tests

func TestSchema_ConsumedSlotsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "consumed_slots")
	expected := []string{
		"id", "receiver", "src_eid", "sender", "nonce",
		"guid", "payload_hash", "status", "consumed_at",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("consumed_slots table missing column %q", col)
		}
	}
}

func TestSchema_LedgerTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "ledger")
	expected := []string{
		"sender", "total_deposited", "deposit_count", "last_updated", "created_at",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("ledger table missing column %q", col)
		}
	}
}

func TestSchema_DepositEventsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "deposit_events")
	expected := []string{
		"seq", "guid", "sender", "amount", "new_total",
		"deposit_index", "timestamp", "correlation_id",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("deposit_events table missing column %q", col)
		}
	}
}

func TestSchema_DepositEventsIndexes(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "deposit_events")
	if !contains(indexes, "idx_deposit_events_sender") {
		t.Error("deposit_events table missing index idx_deposit_events_sender")
	}
}

// Constraint tests

func TestConstraint_SlotStatus(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO consumed_slots (receiver, src_eid, sender, nonce, guid, payload_hash, status, consumed_at)
		VALUES (x'01', 1, x'02', 1, x'03', x'04', 'pending', 0)
	`)
	if err == nil {
		t.Error("expected CHECK violation for unknown slot status")
	}
}

func TestConstraint_SingletonConfig(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO config (id, body, updated_at) VALUES (2, '{}', 0)`)
	if err == nil {
		t.Error("expected CHECK violation for config id != 1")
	}
}

func TestConstraint_LedgerSenderLength(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO ledger (sender, total_deposited, deposit_count, last_updated, created_at)
		VALUES (x'0102', 0, 0, 0, 0)
	`)
	if err == nil {
		t.Error("expected CHECK violation for short ledger sender")
	}
}

// Transaction tests

func TestUpdate_CommitsOnSuccess(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		return tx.PutAppState(ctx, appState("hello", 1))
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	st, err := s.AppState(ctx)
	if err != nil {
		t.Fatalf("AppState() failed: %v", err)
	}
	if st.Text != "hello" || st.Counter != 1 {
		t.Errorf("AppState() = %+v, want hello/1", st)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.PutAppState(ctx, appState("lost", 9)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want %v", err, boom)
	}

	st, err := s.AppState(ctx)
	if err != nil {
		t.Fatalf("AppState() failed: %v", err)
	}
	if st.Text != "" || st.Counter != 0 {
		t.Errorf("AppState() = %+v after rollback, want zero", st)
	}
}

func TestTx_RollbackAfterCommit(t *testing.T) {
	s := createTestStore(t)

	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback() after Commit() = %v, want nil", err)
	}
}

func TestTx_RolledBackSeqIsReused(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_ = s.Update(ctx, func(tx *Tx) error {
		if _, err := tx.AppendDepositEvent(ctx, depositEvent(1, 100)); err != nil {
			return err
		}
		return errors.New("abort")
	})

	ev, err := s.AppendDepositEvent(ctx, depositEvent(1, 100))
	if err != nil {
		t.Fatalf("AppendDepositEvent() failed: %v", err)
	}
	if ev.Seq != 1 {
		t.Errorf("Seq = %d after rolled-back insert, want 1", ev.Seq)
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_IdempotentUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}

		var version int
		if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			t.Fatalf("failed to get user_version: %v", err)
		}
		if version != currentSchemaVersion {
			t.Errorf("iteration %d: user_version = %d, want %d", i, version, currentSchemaVersion)
		}

		s.Close()
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	// Simulate a database created before the sender index existed.
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("DROP INDEX idx_deposit_events_sender"); err != nil {
		t.Fatalf("failed to drop index: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}

	indexes := getTableIndexes(t, s.db, "deposit_events")
	if !contains(indexes, "idx_deposit_events_sender") {
		t.Errorf("deposit_events missing sender index after migration, indexes: %v", indexes)
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
