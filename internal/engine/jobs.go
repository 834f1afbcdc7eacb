package engine

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
)

// cronParser matches the field layout db.sched itself was built with
// (cron.WithSeconds()), so a CronExpr accepted here runs exactly as
// scheduled once registered with the live scheduler.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CreateJob registers a scheduled maintenance job in the system catalog:
// the catalog entry is the durable record, db.sched (already running for
// the built-in checkpoint/reader-sweep jobs) is the live timer. task
// runs with no arguments each time the schedule fires; CreateJob itself
// does not run it.
func (db *Db) CreateJob(name string, schedule pager.JobSchedule, task func()) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	next, err := nextRunFor(schedule)
	if err != nil {
		return err
	}
	schedule.NextRunUnix = next

	txID, err := db.pager.BeginTx()
	if err != nil {
		return err
	}
	entry := pager.CatalogEntry{Name: name, Kind: pager.CatalogKindJob, Job: &schedule}
	if err := db.catalog.PutEntry(txID, entry); err != nil {
		db.pager.AbortTx(txID)
		return err
	}
	if err := db.pager.CommitTx(txID); err != nil {
		return err
	}

	if schedule.Enabled && task != nil {
		if err := db.registerJobTimer(name, schedule, task); err != nil {
			return err
		}
	}
	return nil
}

// registerJobTimer wires one job's schedule into db.sched — the CRON case
// hands the expression straight to robfig/cron; INTERVAL is expressed as
// the same library's "@every" shorthand so recurring user jobs, like the
// built-in ones in scheduler.go, run through one cron.Cron instance
// rather than a second bespoke ticker. A ONCE job is a single
// time.AfterFunc timer.
func (db *Db) registerJobTimer(name string, schedule pager.JobSchedule, task func()) error {
	wrapped := func() {
		db.recordJobRun(name)
		task()
	}
	switch schedule.Type {
	case pager.JobScheduleCron:
		_, err := db.sched.AddFunc(schedule.CronExpr, wrapped)
		return err
	case pager.JobScheduleInterval:
		if schedule.IntervalMs <= 0 {
			return dberr.Sql("job %q: interval_ms must be positive", name)
		}
		spec := cronEverySpec(time.Duration(schedule.IntervalMs) * time.Millisecond)
		_, err := db.sched.AddFunc(spec, wrapped)
		return err
	case pager.JobScheduleOnce:
		delay := time.Until(time.Unix(schedule.RunAtUnix, 0))
		if delay < 0 {
			delay = 0
		}
		time.AfterFunc(delay, wrapped)
		return nil
	default:
		return dberr.Sql("job %q: unknown schedule type %d", name, schedule.Type)
	}
}

func cronEverySpec(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return "@every " + d.String()
}

// nextRunFor computes the schedule's next firing time without registering
// anything, so CreateJob can persist an accurate NextRunUnix even for a
// job created with Enabled=false.
func nextRunFor(schedule pager.JobSchedule) (int64, error) {
	switch schedule.Type {
	case pager.JobScheduleCron:
		sched, err := cronParser.Parse(schedule.CronExpr)
		if err != nil {
			return 0, dberr.Sql("invalid cron expression %q: %s", schedule.CronExpr, err)
		}
		return sched.Next(time.Now()).Unix(), nil
	case pager.JobScheduleInterval:
		if schedule.IntervalMs <= 0 {
			return 0, dberr.Sql("interval_ms must be positive")
		}
		return time.Now().Add(time.Duration(schedule.IntervalMs) * time.Millisecond).Unix(), nil
	case pager.JobScheduleOnce:
		return schedule.RunAtUnix, nil
	default:
		return 0, dberr.Sql("unknown schedule type %d", schedule.Type)
	}
}

// recordJobRun updates a job's LastRunUnix and its NextRunUnix (as
// nextRunFor computes it) in the catalog after each execution.
func (db *Db) recordJobRun(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	entry, err := db.catalog.GetEntry(name)
	if err != nil || entry == nil || entry.Job == nil {
		return
	}
	now := time.Now()
	entry.Job.LastRunUnix = now.Unix()
	if next, err := nextRunFor(*entry.Job); err == nil {
		entry.Job.NextRunUnix = next
	}

	txID, err := db.pager.BeginTx()
	if err != nil {
		return
	}
	if err := db.catalog.PutEntry(txID, *entry); err != nil {
		db.pager.AbortTx(txID)
		return
	}
	_ = db.pager.CommitTx(txID)
}

// Jobs lists every scheduled job currently recorded in the catalog.
func (db *Db) Jobs() ([]pager.CatalogEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names, err := db.catalog.ListByKind(pager.CatalogKindJob)
	if err != nil {
		return nil, err
	}
	entries := make([]pager.CatalogEntry, 0, len(names))
	for _, name := range names {
		entry, err := db.catalog.GetEntry(name)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

// DropJob removes a job's catalog record. It does not stop a timer already
// registered with db.sched for the lifetime of this open Db — robfig/cron
// offers no lookup-by-name, so an in-flight job's cron.EntryID would need
// to be tracked at CreateJob time; out of scope for the catalog-record
// surface this method completes.
func (db *Db) DropJob(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	txID, err := db.pager.BeginTx()
	if err != nil {
		return err
	}
	if err := db.catalog.DeleteEntry(txID, name); err != nil {
		db.pager.AbortTx(txID)
		return err
	}
	return db.pager.CommitTx(txID)
}
