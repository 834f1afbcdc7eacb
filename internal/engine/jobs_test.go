package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
)

func TestJobs_CreateListDrop(t *testing.T) {
	db := newTestDb(t)

	sched := pager.JobSchedule{
		Type:       pager.JobScheduleInterval,
		IntervalMs: 50,
		Enabled:    true,
	}
	var ran atomic.Int32
	if err := db.CreateJob("sweep-temp", sched, func() { ran.Add(1) }); err != nil {
		t.Fatalf("create job: %v", err)
	}

	jobs, err := db.Jobs()
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	got := jobs[0]
	if got.Name != "sweep-temp" || got.Kind != pager.CatalogKindJob {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Job == nil || got.Job.Type != pager.JobScheduleInterval || got.Job.NextRunUnix == 0 {
		t.Fatalf("unexpected job schedule: %+v", got.Job)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ran.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if ran.Load() == 0 {
		t.Fatal("interval job never fired")
	}

	if err := db.DropJob("sweep-temp"); err != nil {
		t.Fatalf("drop job: %v", err)
	}
	jobs, err = db.Jobs()
	if err != nil {
		t.Fatalf("list jobs after drop: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("jobs after drop = %d, want 0", len(jobs))
	}
}

func TestJobs_CronExpressionRejected(t *testing.T) {
	db := newTestDb(t)
	sched := pager.JobSchedule{Type: pager.JobScheduleCron, CronExpr: "not a cron expr", Enabled: true}
	if err := db.CreateJob("bad-cron", sched, func() {}); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestJobs_DisabledJobRecordsNoTimer(t *testing.T) {
	db := newTestDb(t)
	sched := pager.JobSchedule{Type: pager.JobScheduleInterval, IntervalMs: 10, Enabled: false}
	var ran atomic.Int32
	if err := db.CreateJob("disabled-job", sched, func() { ran.Add(1) }); err != nil {
		t.Fatalf("create job: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if ran.Load() != 0 {
		t.Fatal("disabled job should not run")
	}
}
