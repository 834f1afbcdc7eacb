// Package engine is DecentDB's storage-engine coordinator: Open/Close,
// the write/read transaction state machines, row and secondary-index
// primitives, constraint enforcement, and bulk load — everything the
// storage engine owns short of SQL compilation, which lives in an
// external, out-of-scope layer.
//
// The transaction lifecycle generalizes a whole-table load/save pager
// into row-at-a-time primitives backed by BeginTx/CommitTx/AbortTx.
package engine

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/sphildreth/decentdb-sub004/internal/config"
	"github.com/sphildreth/decentdb-sub004/internal/dberr"
	"github.com/sphildreth/decentdb-sub004/internal/logging"
	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
	"github.com/sphildreth/decentdb-sub004/internal/storage/trigram"
)

// Db is one open DecentDB file: the pager, the system catalog, any open
// trigram indexes with pending deltas, and the ambient scheduler/logging
// machinery that drives beginRead/checkpoint/endRead on a timer.
type Db struct {
	mu        sync.RWMutex
	pager     *pager.Pager
	catalog   *pager.Catalog
	opts      config.OpenOptions
	log       *slog.Logger
	logClose  func()
	instance  uuid.UUID
	sched     *cron.Cron
	closed    bool
	trigrams  map[string]*trigram.Index // keyed by index name; holds pending deltas across transactions
	trigramMu sync.Mutex
}

// Open creates or opens a DecentDB file, runs WAL recovery (inside
// OpenPager), loads or creates the system catalog, and starts the
// auto-checkpoint and reader-timeout cron jobs.
func Open(path string, opts config.OpenOptions) (*Db, error) {
	if err := config.Validate(opts); err != nil {
		return nil, err
	}

	p, err := pager.OpenPager(pager.PagerConfig{
		DBPath:        path,
		WALPath:       path + "-wal",
		PageSize:      opts.PageSize,
		MaxCachePages: opts.CachePages,
	})
	if err != nil {
		return nil, dberr.Io("engine: open %s: %s", path, err)
	}

	txID, err := p.BeginTx()
	if err != nil {
		p.Close()
		return nil, err
	}
	cat, err := pager.OpenCatalog(p, txID)
	if err != nil {
		p.Close()
		return nil, dberr.Internal("engine: open catalog: %s", err)
	}
	if err := p.CommitTx(txID); err != nil {
		p.Close()
		return nil, err
	}

	logger, logClose := logging.Setup(logging.Options{Level: slog.LevelInfo})

	db := &Db{
		pager:    p,
		catalog:  cat,
		opts:     opts,
		log:      logger,
		logClose: logClose,
		instance: uuid.New(),
		trigrams: make(map[string]*trigram.Index),
	}
	db.log.Info("engine opened", "path", path, "instance", db.instance.String())

	db.startScheduler()
	return db, nil
}

// Close flushes pending trigram deltas, runs a final checkpoint, stops
// the scheduler, and closes the pager.
func (db *Db) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	if db.sched != nil {
		<-db.sched.Stop().Done()
	}

	if err := db.flushAllTrigramDeltas(); err != nil {
		db.log.Warn("flush trigram deltas at close failed", "err", err)
	}
	if err := db.pager.Checkpoint(); err != nil {
		db.log.Warn("final checkpoint failed", "err", err)
	}

	err := db.pager.Close()
	db.log.Info("engine closed", "instance", db.instance.String())
	db.logClose()
	return err
}

// Stats reports operational metrics drawn from the pager's header and
// scheduler state.
type Stats struct {
	PageSize      int
	SchemaCookie  uint32
	CheckpointLSN pager.LSN
	ActiveReaders int
	Instance      string
}

func (db *Db) Stats() Stats {
	h := db.pager.Header()
	return Stats{
		PageSize:      db.pager.PageSize(),
		SchemaCookie:  h.SchemaCookie,
		CheckpointLSN: h.LastCheckpointLsn,
		ActiveReaders: db.pager.ActiveReaderCount(),
		Instance:      db.instance.String(),
	}
}

// Pager exposes the underlying pager for components (bulk load, recovery
// tooling) that need it directly.
func (db *Db) Pager() *pager.Pager { return db.pager }

// Catalog exposes the system catalog for schema introspection.
func (db *Db) Catalog() *pager.Catalog { return db.catalog }
