package engine

import (
	"github.com/sphildreth/decentdb-sub004/internal/dberr"
	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
	"github.com/sphildreth/decentdb-sub004/internal/storage/rowcodec"
)

// CreateTable registers a new table in the catalog with a fresh,
// empty B+Tree.
func (db *Db) CreateTable(tx *Tx, name string, columns []ColumnDef) (*TableSchema, error) {
	if existing, err := db.catalog.GetEntry(name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, dberr.Constraint("table %q already exists", name)
	}

	bt, err := pager.CreateBTree(db.pager, tx.id)
	if err != nil {
		return nil, err
	}
	ts := &TableSchema{
		Name:       name,
		RootPageID: bt.Root(),
		Columns:    columns,
		NextRowID:  1,
	}
	if err := db.catalog.PutEntry(tx.id, ts.toEntry()); err != nil {
		return nil, err
	}
	db.bumpSchemaCookie()
	return ts, nil
}

// DropTable frees a table's B+Tree pages and removes its catalog entry.
func (db *Db) DropTable(tx *Tx, table *TableSchema) error {
	bt := pager.NewBTree(db.pager, table.RootPageID)
	bt.FreeAllPages(tx.id)
	if err := db.catalog.DeleteEntry(tx.id, table.Name); err != nil {
		return err
	}
	db.bumpSchemaCookie()
	return nil
}

// Table looks up a table's schema by name.
func (db *Db) Table(name string) (*TableSchema, error) {
	entry, err := db.catalog.GetEntry(name)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Kind != pager.CatalogKindTable {
		return nil, nil
	}
	return tableSchemaFromEntry(entry), nil
}

func (db *Db) bumpSchemaCookie() {
	db.pager.UpdateHeader(func(h *pager.DbHeader) {
		h.SchemaCookie++
	})
}

// InsertRow allocates a rowid (table.NextRowID, unless explicitRowid is
// non-zero), encodes values, inserts into the table's B+Tree, and
// maintains every secondary index registered against the table.
func (tx *Tx) InsertRow(table *TableSchema, values []any, explicitRowid uint64) (uint64, error) {
	rowid, err := tx.InsertRowNoIndexes(table, values, explicitRowid)
	if err != nil {
		return 0, err
	}
	if err := tx.maintainIndexesOnInsert(table, rowid, values); err != nil {
		return 0, err
	}
	return rowid, nil
}

// InsertRowNoIndexes inserts a row without touching secondary indexes —
// used by bulkLoad with disableIndexes, followed by a later rebuildIndex
// pass.
func (tx *Tx) InsertRowNoIndexes(table *TableSchema, values []any, explicitRowid uint64) (uint64, error) {
	db := tx.db
	rowid := explicitRowid
	if rowid == 0 {
		rowid = table.NextRowID
	}

	enc, err := rowcodec.MarshalRow(db.pager, tx.id, values, rowcodec.DefaultOverflowThreshold(db.pager.PageSize()))
	if err != nil {
		return 0, err
	}

	bt := pager.NewBTree(db.pager, table.RootPageID)
	if err := bt.Insert(tx.id, pager.RowKey(rowid), enc); err != nil {
		return 0, err
	}
	table.RootPageID = bt.Root()

	if rowid >= table.NextRowID {
		table.NextRowID = rowid + 1
	}
	table.RowCount++
	return rowid, db.catalog.PutEntry(tx.id, table.toEntry())
}

// UpdateRow replaces rowid's values, maintaining secondary indexes
// (removing stale entries, inserting fresh ones) and freeing any
// overflow chains the old encoding referenced.
func (tx *Tx) UpdateRow(table *TableSchema, rowid uint64, newValues []any) error {
	db := tx.db
	bt := pager.NewBTree(db.pager, table.RootPageID)

	oldEnc, found, err := bt.Get(pager.RowKey(rowid))
	if err != nil {
		return err
	}
	if !found {
		return dberr.Sql("update: no row with rowid %d in table %s", rowid, table.Name)
	}
	oldValues, err := rowcodec.UnmarshalRow(db.pager, oldEnc)
	if err != nil {
		return err
	}

	if err := tx.maintainIndexesOnDelete(table, rowid, oldValues); err != nil {
		return err
	}

	newEnc, err := rowcodec.MarshalRow(db.pager, tx.id, newValues, rowcodec.DefaultOverflowThreshold(db.pager.PageSize()))
	if err != nil {
		return err
	}
	if err := bt.Insert(tx.id, pager.RowKey(rowid), newEnc); err != nil {
		return err
	}
	table.RootPageID = bt.Root()

	if err := rowcodec.FreeRowOverflows(db.pager, tx.id, oldEnc); err != nil {
		return err
	}
	if err := tx.maintainIndexesOnInsert(table, rowid, newValues); err != nil {
		return err
	}
	return db.catalog.PutEntry(tx.id, table.toEntry())
}

// DeleteRow removes rowid from the table, frees its overflow chains, and
// removes its secondary-index entries.
func (tx *Tx) DeleteRow(table *TableSchema, rowid uint64) error {
	db := tx.db
	bt := pager.NewBTree(db.pager, table.RootPageID)

	oldEnc, found, err := bt.Get(pager.RowKey(rowid))
	if err != nil {
		return err
	}
	if !found {
		return dberr.Sql("delete: no row with rowid %d in table %s", rowid, table.Name)
	}
	oldValues, err := rowcodec.UnmarshalRow(db.pager, oldEnc)
	if err != nil {
		return err
	}

	if err := tx.maintainIndexesOnDelete(table, rowid, oldValues); err != nil {
		return err
	}

	if _, err := bt.Delete(tx.id, pager.RowKey(rowid)); err != nil {
		return err
	}
	table.RootPageID = bt.Root()

	if err := rowcodec.FreeRowOverflows(db.pager, tx.id, oldEnc); err != nil {
		return err
	}
	table.RowCount--
	return db.catalog.PutEntry(tx.id, table.toEntry())
}

// ReadRowAt reads a single row by rowid, outside any write transaction.
func (db *Db) ReadRowAt(table *TableSchema, rowid uint64) ([]any, bool, error) {
	bt := pager.NewBTree(db.pager, table.RootPageID)
	enc, found, err := bt.Get(pager.RowKey(rowid))
	if err != nil || !found {
		return nil, found, err
	}
	row, err := rowcodec.UnmarshalRow(db.pager, enc)
	return row, true, err
}

// ScanTable iterates every row of table in rowid order, stopping early if
// fn returns false.
func (db *Db) ScanTable(table *TableSchema, fn func(rowid uint64, row []any) bool) error {
	bt := pager.NewBTree(db.pager, table.RootPageID)
	return bt.ScanRange(nil, nil, func(key, val []byte) bool {
		row, err := rowcodec.UnmarshalRow(db.pager, val)
		if err != nil {
			return false
		}
		return fn(pager.ParseRowKey(key), row)
	})
}

func (tx *Tx) maintainIndexesOnInsert(table *TableSchema, rowid uint64, values []any) error {
	indexes, err := tx.db.tableIndexes(table.Name)
	if err != nil {
		return err
	}
	for _, idx := range indexes {
		colIdx := table.columnIndex(idx.Column)
		if colIdx < 0 {
			continue
		}
		val := values[colIdx]
		if idx.Trigram {
			text, ok := val.(string)
			if ok {
				tx.recordTrigramIndex(text, rowid, idx, false)
			}
			continue
		}
		tree := tx.db.openIndexTree(idx)
		key := indexKey(val)
		if idx.Unique {
			err = tree.Insert(tx.id, key, rowidBytes(rowid))
		} else {
			err = tree.InsertDuplicate(tx.id, key, rowidBytes(rowid))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) maintainIndexesOnDelete(table *TableSchema, rowid uint64, values []any) error {
	indexes, err := tx.db.tableIndexes(table.Name)
	if err != nil {
		return err
	}
	for _, idx := range indexes {
		colIdx := table.columnIndex(idx.Column)
		if colIdx < 0 {
			continue
		}
		val := values[colIdx]
		if idx.Trigram {
			text, ok := val.(string)
			if ok {
				tx.recordTrigramIndex(text, rowid, idx, true)
			}
			continue
		}
		tree := tx.db.openIndexTree(idx)
		key := indexKey(val)
		if idx.Unique {
			if _, err := tree.Delete(tx.id, key); err != nil {
				return err
			}
		} else {
			if _, err := tree.DeleteKeyValue(tx.id, key, rowidBytes(rowid)); err != nil {
				return err
			}
		}
	}
	return nil
}
