package engine

import (
	"github.com/sphildreth/decentdb-sub004/internal/dberr"
	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
)

// trigramOp records one buffered trigram-index mutation made during a
// write transaction, replayed into the index's durable Delta only at
// commit — so a rollback simply discards the slice instead of needing to
// undo anything already visible outside the transaction.
type trigramOp struct {
	index  *IndexSchema
	text   string
	rowid  uint64
	remove bool
}

// Tx is a write transaction: a pager.TxID plus the buffered
// trigram-index ops accumulated by row primitives, replayed at Commit.
// Generalizes version-chain transaction bookkeeping into WAL-frame
// bookkeeping: one pager.TxID plus whatever index deltas need replaying
// at commit.
type Tx struct {
	db         *Db
	id         pager.TxID
	trigramOps []trigramOp
}

// Begin starts a write transaction. Blocks until any other writer
// commits or rolls back (pager.BeginTx acquires the WAL's single-writer
// lock).
func (db *Db) Begin() (*Tx, error) {
	id, err := db.pager.BeginTx()
	if err != nil {
		return nil, err
	}
	return &Tx{db: db, id: id}, nil
}

// Commit publishes the transaction's writes as a durable WAL commit,
// then replays its buffered trigram ops into each touched index's
// durable delta buffer (still only flushed to the postings tree at the
// next checkpoint), and fires the auto-checkpoint check.
func (tx *Tx) Commit() error {
	if err := tx.db.pager.CommitTx(tx.id); err != nil {
		return err
	}
	for _, op := range tx.trigramOps {
		t := tx.db.trigramIndexFor(op.index)
		if op.remove {
			t.Delta().RemoveRow(op.text, op.rowid)
		} else {
			t.Delta().IndexRow(op.text, op.rowid)
		}
	}
	tx.db.maybeCheckpoint()
	return nil
}

// Rollback discards the transaction's writes. Buffered trigram ops are
// simply dropped; they were never applied to any index's durable delta.
func (tx *Tx) Rollback() error {
	tx.trigramOps = nil
	return tx.db.pager.AbortTx(tx.id)
}

func (tx *Tx) recordTrigramIndex(text string, rowid uint64, idx *IndexSchema, remove bool) {
	tx.trigramOps = append(tx.trigramOps, trigramOp{
		index:  idx,
		text:   text,
		rowid:  rowid,
		remove: remove,
	})
}

// ReadTx is a read transaction capturing a WAL snapshot at begin.
// Aborted() reports whether a checkpoint has timed out and
// force-truncated this reader.
type ReadTx struct {
	db *Db
	rt *pager.ReadTxn
}

// BeginRead starts a read transaction, pinned to the WAL's current end
// offset until End is called.
func (db *Db) BeginRead() *ReadTx {
	return &ReadTx{db: db, rt: db.pager.BeginRead()}
}

// End releases the read transaction's snapshot pin.
func (rtx *ReadTx) End() { rtx.db.pager.EndRead(rtx.rt) }

// Aborted reports whether this reader was force-aborted by a checkpoint
// exceeding reader_timeout_ms.
func (rtx *ReadTx) Aborted() bool { return rtx.rt.Aborted() }

// checkNotAborted returns a Transaction error if rtx has been aborted by
// checkpoint timeout: an aborted reader's next read must fail rather
// than return stale or truncated pages.
func (rtx *ReadTx) checkNotAborted() error {
	if rtx != nil && rtx.Aborted() {
		return dberr.Transaction("reader aborted by checkpoint timeout")
	}
	return nil
}
