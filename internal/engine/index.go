package engine

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
	"github.com/sphildreth/decentdb-sub004/internal/storage/trigram"
)

var indexCrcTable = crc32.MakeTable(crc32.Castagnoli)

// indexKey derives a secondary B+Tree index's key from a column value.
// INT64/FLOAT64/BOOL keys are order-preserving transforms of the value
// itself; TEXT/BLOB keys are CRC-32C(value), so callers must verify
// exact bytes after a seek since two distinct values can share a hash.
func indexKey(v any) []byte {
	var buf [8]byte
	switch val := v.(type) {
	case nil:
		return buf[:]
	case bool:
		if val {
			buf[7] = 1
		}
		return buf[:]
	case int64:
		binary.BigEndian.PutUint64(buf[:], uint64(val)^0x8000000000000000)
		return buf[:]
	case int:
		return indexKey(int64(val))
	case float64:
		bits := math.Float64bits(val)
		if val >= 0 {
			bits |= 0x8000000000000000
		} else {
			bits = ^bits
		}
		binary.BigEndian.PutUint64(buf[:], bits)
		return buf[:]
	case string:
		binary.BigEndian.PutUint32(buf[4:8], crc32.Checksum([]byte(val), indexCrcTable))
		return buf[:]
	case []byte:
		binary.BigEndian.PutUint32(buf[4:8], crc32.Checksum(val, indexCrcTable))
		return buf[:]
	default:
		return buf[:]
	}
}

func rowidBytes(rowid uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], rowid)
	return buf[:]
}

// openIndexTree opens the B+Tree backing a non-trigram secondary index.
func (db *Db) openIndexTree(idx *IndexSchema) *pager.BTree {
	return pager.NewBTree(db.pager, idx.RootPageID)
}

// IndexSeek returns every rowid stored under value's key in idx — a
// superset of the true matches when value's CRC-32C hash collides with
// another distinct value; callers (enforceUnique/enforceForeignKeys)
// must re-read and compare exact column bytes before trusting a hit.
func (db *Db) IndexSeek(idx *IndexSchema, value any) ([]uint64, error) {
	if idx.Trigram {
		return nil, dberr.Internal("IndexSeek: %s is a trigram index, use CandidateRowids", idx.Name)
	}
	tree := db.openIndexTree(idx)
	key := indexKey(value)
	var rowids []uint64
	err := tree.ScanRange(key, key, func(k, v []byte) bool {
		if !bytes.Equal(k, key) {
			return true
		}
		rowids = append(rowids, binary.BigEndian.Uint64(v))
		return true
	})
	return rowids, err
}

// IndexHasAnyKey reports whether idx has any entry at all for value's
// key, without materializing the rowid list — a cheap "does any row
// still use this key" test. It does not compare exact values, so a
// TEXT/BLOB hash collision counts as a hit.
func (db *Db) IndexHasAnyKey(idx *IndexSchema, value any) (bool, error) {
	tree := db.openIndexTree(idx)
	key := indexKey(value)
	found := false
	err := tree.ScanRange(key, key, func(k, v []byte) bool {
		if bytes.Equal(k, key) {
			found = true
			return false
		}
		return true
	})
	return found, err
}

// IndexHasOtherRowid reports whether idx has an entry at value's key
// belonging to a rowid other than excludeRowid, the row being updated
// that legitimately already owns the key. It does not compare exact
// values; EnforceUnique does its own seek and value check instead.
func (db *Db) IndexHasOtherRowid(idx *IndexSchema, value any, excludeRowid uint64) (bool, error) {
	rowids, err := db.IndexSeek(idx, value)
	if err != nil {
		return false, err
	}
	for _, r := range rowids {
		if r != excludeRowid {
			return true, nil
		}
	}
	return false, nil
}

// BuildIndexForColumn creates a new B+Tree secondary index over an
// existing table's column and populates it from the table's current
// rows, within tx.
func (db *Db) BuildIndexForColumn(tx *Tx, table *TableSchema, column string, unique bool) (*IndexSchema, error) {
	colIdx := table.columnIndex(column)
	if colIdx < 0 {
		return nil, dberr.Internal("BuildIndexForColumn: table %s has no column %s", table.Name, column)
	}

	bt, err := pager.CreateBTree(db.pager, tx.id)
	if err != nil {
		return nil, err
	}

	idx := &IndexSchema{
		Name:       table.Name + "." + column,
		Table:      table.Name,
		Column:     column,
		RootPageID: bt.Root(),
		Unique:     unique,
	}

	err = db.ScanTable(table, func(rowid uint64, row []any) bool {
		key := indexKey(row[colIdx])
		if unique {
			err = bt.Insert(tx.id, key, rowidBytes(rowid))
		} else {
			err = bt.InsertDuplicate(tx.id, key, rowidBytes(rowid))
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}

	if err := db.catalog.PutEntry(tx.id, idx.toEntry()); err != nil {
		return nil, err
	}
	return idx, nil
}

// BuildTrigramIndexForColumn creates a new trigram index over an
// existing TEXT column and populates its delta buffer from current
// rows; the postings are only durable once the delta is flushed at the
// next checkpoint.
func (db *Db) BuildTrigramIndexForColumn(tx *Tx, table *TableSchema, column string) (*IndexSchema, error) {
	colIdx := table.columnIndex(column)
	if colIdx < 0 {
		return nil, dberr.Internal("BuildTrigramIndexForColumn: table %s has no column %s", table.Name, column)
	}

	tidx, err := trigram.CreateIndex(db.pager, tx.id)
	if err != nil {
		return nil, err
	}

	idx := &IndexSchema{
		Name:       table.Name + "." + column + ".trigram",
		Table:      table.Name,
		Column:     column,
		RootPageID: tidx.Root(),
		Trigram:    true,
	}

	err = db.ScanTable(table, func(rowid uint64, row []any) bool {
		text, ok := row[colIdx].(string)
		if !ok {
			return true
		}
		tidx.Delta().IndexRow(text, rowid)
		return true
	})
	if err != nil {
		return nil, err
	}

	if err := db.catalog.PutEntry(tx.id, idx.toEntry()); err != nil {
		return nil, err
	}

	db.trigramMu.Lock()
	db.trigrams[idx.Name] = tidx
	db.trigramMu.Unlock()
	return idx, nil
}

// RebuildIndex drops and recreates idx from the table's current rows,
// used after a bulk load with disableIndexes or after corruption repair.
func (db *Db) RebuildIndex(tx *Tx, table *TableSchema, idx *IndexSchema) (*IndexSchema, error) {
	if idx.Trigram {
		return db.BuildTrigramIndexForColumn(tx, table, idx.Column)
	}
	return db.BuildIndexForColumn(tx, table, idx.Column, idx.Unique)
}

// tableIndexes returns every index (btree or trigram) registered against
// table, for row-mutation primitives to keep in sync.
func (db *Db) tableIndexes(tableName string) ([]*IndexSchema, error) {
	names, err := db.catalog.ListByKind(pager.CatalogKindIndex)
	if err != nil {
		return nil, err
	}
	tnames, err := db.catalog.ListByKind(pager.CatalogKindTrigramIndex)
	if err != nil {
		return nil, err
	}
	names = append(names, tnames...)

	var out []*IndexSchema
	for _, n := range names {
		entry, err := db.catalog.GetEntry(n)
		if err != nil {
			return nil, err
		}
		is := indexSchemaFromEntry(entry)
		if is != nil && is.Table == tableName {
			out = append(out, is)
		}
	}
	return out, nil
}

// trigramIndexFor looks up (or lazily opens) the in-memory trigram.Index
// wrapper for an index schema, so its delta buffer persists across
// transactions until flushed at checkpoint.
func (db *Db) trigramIndexFor(idx *IndexSchema) *trigram.Index {
	db.trigramMu.Lock()
	defer db.trigramMu.Unlock()
	if t, ok := db.trigrams[idx.Name]; ok {
		return t
	}
	t := trigram.OpenIndex(db.pager, idx.RootPageID)
	db.trigrams[idx.Name] = t
	return t
}

// flushAllTrigramDeltas is called at checkpoint/close time so every
// trigram index's buffered delta reaches the postings tree together.
func (db *Db) flushAllTrigramDeltas() error {
	db.trigramMu.Lock()
	defer db.trigramMu.Unlock()
	for name, t := range db.trigrams {
		txID, err := db.pager.BeginTx()
		if err != nil {
			return err
		}
		if err := t.Flush(txID); err != nil {
			db.pager.AbortTx(txID)
			return dberr.Internal("flush trigram index %s: %s", name, err)
		}
		entry, err := db.catalog.GetEntry(name)
		if err == nil && entry != nil {
			entry.RootPageID = t.Root()
			if perr := db.catalog.PutEntry(txID, *entry); perr != nil {
				db.pager.AbortTx(txID)
				return perr
			}
		}
		if err := db.pager.CommitTx(txID); err != nil {
			return err
		}
	}
	return nil
}
