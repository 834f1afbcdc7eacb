package engine

import "github.com/sphildreth/decentdb-sub004/internal/storage/pager"

// ColumnType enumerates the value kinds a DecentDB column may hold.
// Richer SQL-level types belong to a layer above the storage engine;
// these five are what a stored row's value variants reduce to on disk.
type ColumnType int

const (
	ColInt64 ColumnType = iota
	ColFloat64
	ColText
	ColBlob
	ColBool
)

// ConstraintFlag is a bitmask of per-column constraints, packed into
// pager.CatalogColumn.Constraint. A bitmask rather than a single enum
// value since a column can be simultaneously NOT NULL and UNIQUE.
type ConstraintFlag int

const (
	ConstraintNotNull ConstraintFlag = 1 << iota
	ConstraintUnique
	ConstraintPrimaryKey
)

// ColumnDef is the engine-level column descriptor; TableSchema.Columns
// are converted to/from pager.CatalogColumn at catalog load/save time.
type ColumnDef struct {
	Name       string
	Type       ColumnType
	Constraint ConstraintFlag
	FKTable    string
	FKColumn   string
}

func (c ColumnDef) NotNull() bool    { return c.Constraint&ConstraintNotNull != 0 }
func (c ColumnDef) Unique() bool     { return c.Constraint&ConstraintUnique != 0 }
func (c ColumnDef) PrimaryKey() bool { return c.Constraint&ConstraintPrimaryKey != 0 }

// TableSchema is the engine-level view of a pager.CatalogEntry with
// Kind == CatalogKindTable.
type TableSchema struct {
	Name       string
	RootPageID pager.PageID
	Columns    []ColumnDef
	NextRowID  uint64
	RowCount   int64
	Version    int
}

func columnDefsToCatalog(cols []ColumnDef) []pager.CatalogColumn {
	out := make([]pager.CatalogColumn, len(cols))
	for i, c := range cols {
		out[i] = pager.CatalogColumn{
			Name:       c.Name,
			Type:       int(c.Type),
			Constraint: int(c.Constraint),
			FKTable:    c.FKTable,
			FKColumn:   c.FKColumn,
		}
	}
	return out
}

func catalogColumnsToDefs(cols []pager.CatalogColumn) []ColumnDef {
	out := make([]ColumnDef, len(cols))
	for i, c := range cols {
		out[i] = ColumnDef{
			Name:       c.Name,
			Type:       ColumnType(c.Type),
			Constraint: ConstraintFlag(c.Constraint),
			FKTable:    c.FKTable,
			FKColumn:   c.FKColumn,
		}
	}
	return out
}

func tableSchemaFromEntry(e *pager.CatalogEntry) *TableSchema {
	if e == nil {
		return nil
	}
	return &TableSchema{
		Name:       e.Name,
		RootPageID: e.RootPageID,
		Columns:    catalogColumnsToDefs(e.Columns),
		NextRowID:  e.NextRowID,
		RowCount:   e.RowCount,
		Version:    e.Version,
	}
}

func (ts *TableSchema) toEntry() pager.CatalogEntry {
	return pager.CatalogEntry{
		Name:       ts.Name,
		Kind:       pager.CatalogKindTable,
		RootPageID: ts.RootPageID,
		Columns:    columnDefsToCatalog(ts.Columns),
		RowCount:   ts.RowCount,
		NextRowID:  ts.NextRowID,
		Version:    ts.Version,
	}
}

func (ts *TableSchema) columnIndex(name string) int {
	for i, c := range ts.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// IndexSchema is the engine-level view of a pager.CatalogEntry with
// Kind == CatalogKindIndex or CatalogKindTrigramIndex.
type IndexSchema struct {
	Name       string
	Table      string
	Column     string
	RootPageID pager.PageID
	Unique     bool
	Trigram    bool
}

func indexSchemaFromEntry(e *pager.CatalogEntry) *IndexSchema {
	if e == nil {
		return nil
	}
	return &IndexSchema{
		Name:       e.Name,
		Table:      e.OnTable,
		Column:     e.OnColumn,
		RootPageID: e.RootPageID,
		Unique:     e.Unique,
		Trigram:    e.Kind == pager.CatalogKindTrigramIndex,
	}
}

func (is *IndexSchema) toEntry() pager.CatalogEntry {
	kind := pager.CatalogKindIndex
	if is.Trigram {
		kind = pager.CatalogKindTrigramIndex
	}
	return pager.CatalogEntry{
		Name:       is.Name,
		Kind:       kind,
		RootPageID: is.RootPageID,
		OnTable:    is.Table,
		OnColumn:   is.Column,
		Unique:     is.Unique,
	}
}
