package engine

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// startScheduler wires the auto-checkpoint and reader-timeout sweep as
// ordinary robfig/cron recurring jobs on Db: neither job is a bespoke
// goroutine or ticker, both call only Db and Pager methods that other
// callers use too (trigram flush, Checkpoint, reader count, reader
// abort), and Close stops the cron scheduler before the pager itself is
// closed.
func (db *Db) startScheduler() {
	db.sched = cron.New(cron.WithSeconds())

	if db.opts.CheckpointMs > 0 {
		spec := fmt.Sprintf("@every %s", time.Duration(db.opts.CheckpointMs)*time.Millisecond)
		if _, err := db.sched.AddFunc(spec, db.timerCheckpoint); err != nil {
			db.log.Warn("schedule auto-checkpoint timer failed", "err", err)
		}
	}

	if db.opts.ReaderTimeoutMs > 0 {
		sweep := db.opts.ReaderTimeoutMs / 2
		if sweep < 100 {
			sweep = 100
		}
		spec := fmt.Sprintf("@every %s", time.Duration(sweep)*time.Millisecond)
		if _, err := db.sched.AddFunc(spec, db.sweepReaders); err != nil {
			db.log.Warn("schedule reader-timeout sweep failed", "err", err)
		}
	}

	db.sched.Start()
}

// maybeCheckpoint runs a size-triggered checkpoint when the WAL has grown
// past opts.CheckpointBytes since the last checkpoint — the "bytes
// written" half of a checkpoint trigger that also fires on a periodic
// timer, whichever comes first. Called after every write-transaction
// commit.
func (db *Db) maybeCheckpoint() {
	if db.opts.CheckpointBytes <= 0 {
		return
	}
	h := db.pager.Header()
	grown := int64(db.pager.WalEnd()) - int64(h.LastCheckpointLsn)
	if grown < db.opts.CheckpointBytes {
		return
	}
	if err := db.runCheckpoint(); err != nil {
		db.log.Warn("size-triggered checkpoint failed", "err", err)
	}
}

// timerCheckpoint is the periodic-timer half of the same trigger.
func (db *Db) timerCheckpoint() {
	if err := db.runCheckpoint(); err != nil {
		db.log.Warn("timer-triggered checkpoint failed", "err", err)
	}
}

func (db *Db) runCheckpoint() error {
	if err := db.flushAllTrigramDeltas(); err != nil {
		return err
	}
	return db.pager.Checkpoint()
}

// sweepReaders force-aborts reader snapshots that have held their
// snapshot past reader_timeout_ms when force_truncate_on_timeout is set,
// so one slow reader cannot pin the WAL open forever and starve
// checkpoint truncation. With reader_warn_ms set it logs, at debug level,
// how many readers are active; it does not compare reader ages with
// reader_warn_ms and logs no per-reader warning.
func (db *Db) sweepReaders() {
	if db.opts.ReaderWarnMs > 0 {
		warnAge := time.Duration(db.opts.ReaderWarnMs) * time.Millisecond
		if n := db.pager.ActiveReaderCount(); n > 0 {
			db.log.Debug("active readers at sweep", "count", n, "warn_age", warnAge)
		}
	}
	if !db.opts.ForceTruncateOnTimeout || db.opts.ReaderTimeoutMs <= 0 {
		return
	}
	timeoutAge := time.Duration(db.opts.ReaderTimeoutMs) * time.Millisecond
	if n := db.pager.AbortReadersOlderThan(timeoutAge); n > 0 {
		db.log.Warn("force-aborted stale readers", "count", n, "timeout", timeoutAge)
	}
}
