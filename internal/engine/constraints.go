package engine

import (
	"bytes"
	"sort"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
)

// EnforceNotNull checks every NOT NULL column of table against values.
func EnforceNotNull(table *TableSchema, values []any) error {
	for i, col := range table.Columns {
		if col.NotNull() && (i >= len(values) || values[i] == nil) {
			return dberr.Constraint("NOT NULL constraint violated on %s.%s", table.Name, col.Name)
		}
	}
	return nil
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	default:
		return a == b
	}
}

// EnforceUnique checks idx's UNIQUE constraint for value, excluding
// excludeRowid (the row being updated, which legitimately already owns
// the key). For INT64/FLOAT64/BOOL columns the index key is an
// order-preserving transform so any hit is a true duplicate; for
// TEXT/BLOB the key is a CRC-32C hash, so every candidate's actual
// column bytes are re-read and compared.
func (db *Db) EnforceUnique(table *TableSchema, idx *IndexSchema, value any, excludeRowid uint64) error {
	rowids, err := db.IndexSeek(idx, value)
	if err != nil {
		return err
	}
	colIdx := table.columnIndex(idx.Column)
	for _, rid := range rowids {
		if rid == excludeRowid {
			continue
		}
		row, found, err := db.ReadRowAt(table, rid)
		if err != nil {
			return err
		}
		if found && valuesEqual(row[colIdx], value) {
			return dberr.Constraint("UNIQUE constraint violated on %s.%s", table.Name, idx.Column)
		}
	}
	return nil
}

// EnforceForeignKey checks that value exists in parentIdx's column,
// with the same hash-collision verification as EnforceUnique.
func (db *Db) EnforceForeignKey(childTable, parentTable *TableSchema, childColumn string, parentIdx *IndexSchema, value any) error {
	if value == nil {
		return nil // NULL FK values are unconstrained
	}
	rowids, err := db.IndexSeek(parentIdx, value)
	if err != nil {
		return err
	}
	colIdx := parentTable.columnIndex(parentIdx.Column)
	for _, rid := range rowids {
		row, found, err := db.ReadRowAt(parentTable, rid)
		if err != nil {
			return err
		}
		if found && valuesEqual(row[colIdx], value) {
			return nil
		}
	}
	return dberr.Constraint("FOREIGN KEY violation: %s.%s references missing %s.%s",
		childTable.Name, childColumn, parentTable.Name, parentIdx.Column)
}

// EnforceRestrictOnParentDelete rejects deleting/updating a parent key
// still referenced by a child row.
func (db *Db) EnforceRestrictOnParentDelete(childTable *TableSchema, childIdx *IndexSchema, parentValue any) error {
	rowids, err := db.IndexSeek(childIdx, parentValue)
	if err != nil {
		return err
	}
	colIdx := childTable.columnIndex(childIdx.Column)
	for _, rid := range rowids {
		row, found, err := db.ReadRowAt(childTable, rid)
		if err != nil {
			return err
		}
		if found && valuesEqual(row[colIdx], parentValue) {
			return dberr.Constraint("cannot modify parent key still referenced by %s.%s",
				childTable.Name, childIdx.Column)
		}
	}
	return nil
}

// batchKey pairs a prospective value with the rowid it would belong to
// (0 for not-yet-assigned inserts), used by EnforceUniqueBatch to group
// a batch's values by index key.
type batchKey struct {
	value  any
	rowid  uint64
	origin int // index into the original values slice, for error reporting
}

// EnforceNotNullBatch runs EnforceNotNull over every row in a batch.
func EnforceNotNullBatch(table *TableSchema, rows [][]any) error {
	for _, values := range rows {
		if err := EnforceNotNull(table, values); err != nil {
			return err
		}
	}
	return nil
}

// EnforceUniqueBatch groups the batch's candidate values by their index
// key to catch intra-batch duplicates (two rows in the same batch
// proposing the same value), then checks each row against already-
// committed rows through EnforceUnique. That second step issues one
// IndexSeek per row; rows sharing a key do not share a seek.
func (db *Db) EnforceUniqueBatch(table *TableSchema, idx *IndexSchema, values []any, rowids []uint64) error {
	byKey := make(map[string][]batchKey)
	for i, v := range values {
		rid := uint64(0)
		if i < len(rowids) {
			rid = rowids[i]
		}
		k := string(indexKey(v))
		byKey[k] = append(byKey[k], batchKey{value: v, rowid: rid, origin: i})
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		group := byKey[k]
		for a := 0; a < len(group); a++ {
			for b := a + 1; b < len(group); b++ {
				if valuesEqual(group[a].value, group[b].value) {
					return dberr.Constraint("UNIQUE constraint violated within batch on %s.%s", table.Name, idx.Column)
				}
			}
		}
		for _, bk := range group {
			if err := db.EnforceUnique(table, idx, bk.value, bk.rowid); err != nil {
				return err
			}
		}
	}
	return nil
}

// EnforceForeignKeysBatch amortizes FK existence checks by running
// EnforceForeignKey once per distinct index key in the batch.
func (db *Db) EnforceForeignKeysBatch(childTable, parentTable *TableSchema, childColumn string, parentIdx *IndexSchema, values []any) error {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		k := string(indexKey(v))
		if seen[k] {
			continue
		}
		seen[k] = true
		if err := db.EnforceForeignKey(childTable, parentTable, childColumn, parentIdx, v); err != nil {
			return err
		}
	}
	return nil
}

// EnforceConstraintsBatch runs NOT NULL, UNIQUE, and FOREIGN KEY checks
// for a batch of rows against table's declared indexes, the entry point bulk loads call.
func (db *Db) EnforceConstraintsBatch(table *TableSchema, rows [][]any, indexes []*IndexSchema, fks []ForeignKeyCheck) error {
	if err := EnforceNotNullBatch(table, rows); err != nil {
		return err
	}
	for _, idx := range indexes {
		if idx.Trigram || !idx.Unique {
			continue
		}
		colIdx := table.columnIndex(idx.Column)
		if colIdx < 0 {
			continue
		}
		values := make([]any, len(rows))
		for i, r := range rows {
			values[i] = r[colIdx]
		}
		if err := db.EnforceUniqueBatch(table, idx, values, nil); err != nil {
			return err
		}
	}
	for _, fk := range fks {
		colIdx := table.columnIndex(fk.ChildColumn)
		if colIdx < 0 {
			continue
		}
		values := make([]any, len(rows))
		for i, r := range rows {
			values[i] = r[colIdx]
		}
		if err := db.EnforceForeignKeysBatch(table, fk.ParentTable, fk.ChildColumn, fk.ParentIndex, values); err != nil {
			return err
		}
	}
	return nil
}

// ForeignKeyCheck names one FK relationship to validate during a batch
// load — the engine has no SQL-layer foreign key catalog of its own, so
// callers supply the relationships to check.
type ForeignKeyCheck struct {
	ChildColumn string
	ParentTable *TableSchema
	ParentIndex *IndexSchema
}
