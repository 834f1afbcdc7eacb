package engine

import "github.com/sphildreth/decentdb-sub004/internal/dberr"

func tableNotFoundErr(name string) error {
	return dberr.Sql("no such table: %s", name)
}

// Durability selects how often a bulk load commits its writer
// transaction.
type Durability int

const (
	// DurabilityFull commits after every batch.
	DurabilityFull Durability = iota
	// DurabilityDeferred commits every SyncInterval batches.
	DurabilityDeferred
	// DurabilityNone commits only once, after the entire load completes.
	// A full implementation would also disable the WAL overlay for the
	// rest of the connection while this mode is active; that broader
	// behavior change is not implemented here — this mode is
	// approximated as "commit once at the end".
	DurabilityNone
)

// BulkLoadOptions configures a BulkLoad call.
type BulkLoadOptions struct {
	BatchSize            int
	SyncInterval         int
	DisableIndexes       bool
	CheckpointOnComplete bool
	Durability           Durability
	ForeignKeys          []ForeignKeyCheck
}

// BulkLoad loads rows into an existing table in batches: validating
// constraints per batch, inserting via InsertRow (or InsertRowNoIndexes
// when DisableIndexes is set, with every index rebuilt once at the
// end), and committing at the cadence Durability names.
//
// Constraint validation here checks each batch in isolation plus
// against already-committed rows (EnforceConstraintsBatch); a larger
// load could instead spill a running per-unique-column merge to a temp
// file to catch cross-batch duplicates without retaining all keys in
// RAM, but that is not implemented here.
func (db *Db) BulkLoad(tableName string, rows [][]any, opts BulkLoadOptions) (int, error) {
	table, err := db.Table(tableName)
	if err != nil {
		return 0, err
	}
	if table == nil {
		return 0, tableNotFoundErr(tableName)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(rows)
		if batchSize == 0 {
			batchSize = 1
		}
	}
	syncInterval := opts.SyncInterval
	if syncInterval <= 0 {
		syncInterval = 1
	}

	indexes, err := db.tableIndexes(table.Name)
	if err != nil {
		return 0, err
	}

	inserted := 0
	var tx *Tx
	batchesSinceCommit := 0

	commitIfDue := func(force bool) error {
		if tx == nil {
			return nil
		}
		due := opts.Durability == DurabilityFull ||
			(opts.Durability == DurabilityDeferred && batchesSinceCommit >= syncInterval) ||
			force
		if !due {
			return nil
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		tx = nil
		batchesSinceCommit = 0
		return nil
	}

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		if !opts.DisableIndexes {
			if err := db.EnforceConstraintsBatch(table, batch, indexes, opts.ForeignKeys); err != nil {
				return inserted, err
			}
		} else {
			if err := EnforceNotNullBatch(table, batch); err != nil {
				return inserted, err
			}
		}

		if tx == nil {
			tx, err = db.Begin()
			if err != nil {
				return inserted, err
			}
		}

		for _, row := range batch {
			if opts.DisableIndexes {
				if _, err := tx.InsertRowNoIndexes(table, row, 0); err != nil {
					tx.Rollback()
					return inserted, err
				}
			} else {
				if _, err := tx.InsertRow(table, row, 0); err != nil {
					tx.Rollback()
					return inserted, err
				}
			}
			inserted++
		}

		batchesSinceCommit++
		if err := commitIfDue(false); err != nil {
			return inserted, err
		}
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return inserted, err
		}
	}

	if opts.DisableIndexes && len(indexes) == 0 {
		// No indexes existed before the load; nothing to rebuild.
	} else if opts.DisableIndexes {
		rtx, err := db.Begin()
		if err != nil {
			return inserted, err
		}
		all, err := db.tableIndexes(table.Name)
		if err != nil {
			rtx.Rollback()
			return inserted, err
		}
		for _, idx := range all {
			if _, err := db.RebuildIndex(rtx, table, idx); err != nil {
				rtx.Rollback()
				return inserted, err
			}
		}
		if err := rtx.Commit(); err != nil {
			return inserted, err
		}
	}

	if opts.CheckpointOnComplete {
		if err := db.pager.Checkpoint(); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}
