package engine

import (
	"path/filepath"
	"testing"

	"github.com/sphildreth/decentdb-sub004/internal/config"
)

func newTestDb(t *testing.T) *Db {
	t.Helper()
	dir := t.TempDir()
	opts := config.Default()
	db, err := Open(filepath.Join(dir, "test.db"), opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateTable(t *testing.T, db *Db, name string, cols []ColumnDef) *TableSchema {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	ts, err := db.CreateTable(tx, name, cols)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return ts
}

func TestEngine_OpenCloseReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reopen.db")
	opts := config.Default()

	db, err := Open(path, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustCreateTable(t, db, "widgets", []ColumnDef{
		{Name: "id", Type: ColInt64, Constraint: ConstraintPrimaryKey},
		{Name: "name", Type: ColText},
	})
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(path, opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	ts, err := db2.Table("widgets")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ts == nil {
		t.Fatal("widgets table missing after reopen")
	}
	if len(ts.Columns) != 2 {
		t.Fatalf("columns = %d, want 2", len(ts.Columns))
	}
}

func TestEngine_InsertUpdateDeleteRoundTrip(t *testing.T) {
	db := newTestDb(t)
	table := mustCreateTable(t, db, "people", []ColumnDef{
		{Name: "id", Type: ColInt64},
		{Name: "name", Type: ColText, Constraint: ConstraintNotNull},
	})

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rowid, err := tx.InsertRow(table, []any{int64(1), "ada"}, 0)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	row, found, err := db.ReadRowAt(table, rowid)
	if err != nil || !found {
		t.Fatalf("read: found=%v err=%v", found, err)
	}
	if row[1] != "ada" {
		t.Fatalf("row[1] = %v, want ada", row[1])
	}

	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("begin 2: %v", err)
	}
	if err := tx2.UpdateRow(table, rowid, []any{int64(1), "grace"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	row, found, err = db.ReadRowAt(table, rowid)
	if err != nil || !found || row[1] != "grace" {
		t.Fatalf("row after update = %v found=%v err=%v", row, found, err)
	}

	tx3, err := db.Begin()
	if err != nil {
		t.Fatalf("begin 3: %v", err)
	}
	if err := tx3.DeleteRow(table, rowid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tx3.Commit(); err != nil {
		t.Fatalf("commit 3: %v", err)
	}

	_, found, err = db.ReadRowAt(table, rowid)
	if err != nil {
		t.Fatalf("read after delete: %v", err)
	}
	if found {
		t.Fatal("row still present after delete")
	}
}

func TestEngine_RollbackDiscardsWrites(t *testing.T) {
	db := newTestDb(t)
	table := mustCreateTable(t, db, "tmp", []ColumnDef{
		{Name: "n", Type: ColInt64},
	})

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rowid, err := tx.InsertRow(table, []any{int64(42)}, 0)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	_, found, err := db.ReadRowAt(table, rowid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if found {
		t.Fatal("rolled-back row visible")
	}
}

func TestEngine_ScanTable(t *testing.T) {
	db := newTestDb(t)
	table := mustCreateTable(t, db, "nums", []ColumnDef{{Name: "n", Type: ColInt64}})

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := int64(1); i <= 5; i++ {
		if _, err := tx.InsertRow(table, []any{i}, 0); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var seen []int64
	err = db.ScanTable(table, func(rowid uint64, row []any) bool {
		seen = append(seen, row[0].(int64))
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != 5 {
		t.Fatalf("scanned %d rows, want 5", len(seen))
	}
}

func TestEngine_UniqueIndexSeekAndEnforce(t *testing.T) {
	db := newTestDb(t)
	table := mustCreateTable(t, db, "accounts", []ColumnDef{
		{Name: "email", Type: ColText, Constraint: ConstraintUnique},
	})

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	idx, err := db.BuildIndexForColumn(tx, table, "email", true)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	rowid, err := tx.InsertRow(table, []any{"a@example.com"}, 0)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rowids, err := db.IndexSeek(idx, "a@example.com")
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	if len(rowids) != 1 || rowids[0] != rowid {
		t.Fatalf("seek = %v, want [%d]", rowids, rowid)
	}

	if err := db.EnforceUnique(table, idx, "a@example.com", 0); err == nil {
		t.Fatal("expected unique violation")
	}
	if err := db.EnforceUnique(table, idx, "a@example.com", rowid); err != nil {
		t.Fatalf("unexpected violation excluding own rowid: %v", err)
	}
}

func TestEngine_NotNullConstraint(t *testing.T) {
	db := newTestDb(t)
	table := mustCreateTable(t, db, "req", []ColumnDef{
		{Name: "name", Type: ColText, Constraint: ConstraintNotNull},
	})

	// EnforceNotNull is the caller's responsibility (the SQL layer, out
	// of scope here) — row primitives themselves don't self-validate.
	if err := EnforceNotNull(table, []any{nil}); err == nil {
		t.Fatal("expected NOT NULL violation")
	}
	if err := EnforceNotNull(table, []any{"ok"}); err != nil {
		t.Fatalf("unexpected violation: %v", err)
	}
}

func TestEngine_BulkLoadFullDurability(t *testing.T) {
	db := newTestDb(t)
	table := mustCreateTable(t, db, "bulk", []ColumnDef{{Name: "n", Type: ColInt64}})

	rows := make([][]any, 0, 10)
	for i := int64(0); i < 10; i++ {
		rows = append(rows, []any{i})
	}
	n, err := db.BulkLoad("bulk", rows, BulkLoadOptions{
		BatchSize:  3,
		Durability: DurabilityFull,
	})
	if err != nil {
		t.Fatalf("bulk load: %v", err)
	}
	if n != 10 {
		t.Fatalf("inserted = %d, want 10", n)
	}

	count := 0
	err = db.ScanTable(table, func(rowid uint64, row []any) bool {
		count++
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 10 {
		t.Fatalf("scanned %d rows, want 10", count)
	}
}

func TestEngine_BulkLoadDisableIndexesRebuilds(t *testing.T) {
	db := newTestDb(t)
	table := mustCreateTable(t, db, "idxbulk", []ColumnDef{
		{Name: "email", Type: ColText, Constraint: ConstraintUnique},
	})

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	idx, err := db.BuildIndexForColumn(tx, table, "email", true)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rows := [][]any{{"one@example.com"}, {"two@example.com"}}
	n, err := db.BulkLoad("idxbulk", rows, BulkLoadOptions{
		DisableIndexes: true,
	})
	if err != nil {
		t.Fatalf("bulk load: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted = %d, want 2", n)
	}

	rowids, err := db.IndexSeek(idx, "two@example.com")
	if err != nil {
		t.Fatalf("seek after rebuild: %v", err)
	}
	if len(rowids) != 1 {
		t.Fatalf("seek after rebuild = %v, want 1 hit", rowids)
	}
}

func TestEngine_StatsReportsPageSizeAndInstance(t *testing.T) {
	db := newTestDb(t)
	stats := db.Stats()
	if stats.PageSize != config.Default().PageSize {
		t.Fatalf("page size = %d, want %d", stats.PageSize, config.Default().PageSize)
	}
	if stats.Instance == "" {
		t.Fatal("instance id empty")
	}
}
