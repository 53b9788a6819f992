package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/example/studysync/internal/persistence"
	"github.com/example/studysync/internal/testfixtures"
)

type jobRepoStub struct {
	jobs map[string]persistence.SyncJob
}

func newJobRepoStub(jobs ...persistence.SyncJob) *jobRepoStub {
	stub := &jobRepoStub{jobs: make(map[string]persistence.SyncJob)}
	for _, job := range jobs {
		stub.jobs[job.ID] = job
	}
	return stub
}

func (s *jobRepoStub) UpsertJob(ctx context.Context, job persistence.SyncJob) error {
	s.jobs[job.ID] = job
	return nil
}

func (s *jobRepoStub) DeleteJob(ctx context.Context, id string) error {
	if _, ok := s.jobs[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *jobRepoStub) DeleteJobsMatching(ctx context.Context, prefix string) (int, error) {
	removed := 0
	for id := range s.jobs {
		if strings.HasPrefix(id, prefix) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *jobRepoStub) DueJobs(ctx context.Context, reference time.Time) ([]persistence.SyncJob, error) {
	var due []persistence.SyncJob
	for _, job := range s.jobs {
		if !job.RunAt.After(reference) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].RunAt.Before(due[j].RunAt)
	})
	return due, nil
}

func trigger(id, kind, groupID string, runAt time.Time) persistence.SyncJob {
	return persistence.SyncJob{ID: id, Kind: kind, GroupID: groupID, RunAt: runAt}
}

func TestRunDueDispatchesAndDeletes(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	now := clock.Current()
	repo := newJobRepoStub(
		trigger("t1", "guest_grant", "g1", now.Add(-time.Minute)),
		trigger("t2", "guest_revoke", "g2", now),
		trigger("t3", "guest_grant", "g3", now.Add(time.Hour)),
	)

	var handled []string
	runner := NewRunner(repo, time.Minute, clock.NowFunc(), nil)
	handler := func(ctx context.Context, job persistence.SyncJob) error {
		handled = append(handled, job.ID+":"+job.GroupID)
		return nil
	}
	runner.Handle("guest_grant", handler)
	runner.Handle("guest_revoke", handler)

	completed, err := runner.RunDue(context.Background())
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if completed != 2 {
		t.Errorf("completed %d triggers, want 2", completed)
	}
	if len(handled) != 2 || handled[0] != "t1:g1" || handled[1] != "t2:g2" {
		t.Errorf("unexpected dispatch order %v", handled)
	}
	if _, ok := repo.jobs["t3"]; !ok {
		t.Error("future trigger was consumed")
	}
	if len(repo.jobs) != 1 {
		t.Errorf("%d triggers remain, want 1", len(repo.jobs))
	}
}

func TestRunDueKeepsFailedTrigger(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	repo := newJobRepoStub(trigger("t1", "guest_grant", "g1", clock.Current()))

	runner := NewRunner(repo, time.Minute, clock.NowFunc(), nil)
	attempts := 0
	runner.Handle("guest_grant", func(ctx context.Context, job persistence.SyncJob) error {
		attempts++
		if attempts == 1 {
			return errors.New("provider down")
		}
		return nil
	})

	if completed, err := runner.RunDue(context.Background()); err != nil || completed != 0 {
		t.Fatalf("first pass: completed=%d err=%v", completed, err)
	}
	if _, ok := repo.jobs["t1"]; !ok {
		t.Fatal("failed trigger must stay for retry")
	}

	if completed, err := runner.RunDue(context.Background()); err != nil || completed != 1 {
		t.Fatalf("second pass: completed=%d err=%v", completed, err)
	}
	if len(repo.jobs) != 0 {
		t.Error("trigger not deleted after successful retry")
	}
}

func TestRunDueDropsUnknownKind(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	repo := newJobRepoStub(trigger("t1", "unsupported", "g1", clock.Current()))

	runner := NewRunner(repo, time.Minute, clock.NowFunc(), nil)
	if completed, err := runner.RunDue(context.Background()); err != nil || completed != 0 {
		t.Fatalf("RunDue: completed=%d err=%v", completed, err)
	}
	if len(repo.jobs) != 0 {
		t.Error("unknown trigger must be dropped")
	}
}

func TestSweepRunsAllPassesDespiteFailures(t *testing.T) {
	sweeper := NewSweeper(time.Minute, nil)

	var ran []string
	sweeper.Register("calendar", func(ctx context.Context) error {
		ran = append(ran, "calendar")
		return errors.New("quota exceeded")
	})
	sweeper.Register("roster", func(ctx context.Context) error {
		ran = append(ran, "roster")
		return nil
	})

	sweeper.Sweep(context.Background())
	if len(ran) != 2 || ran[0] != "calendar" || ran[1] != "roster" {
		t.Errorf("passes ran %v, want both in order", ran)
	}
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	sweeper := NewSweeper(time.Minute, nil)

	ran := 0
	sweeper.Register("first", func(ctx context.Context) error {
		ran++
		return nil
	})
	sweeper.Register("second", func(ctx context.Context) error {
		ran++
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sweeper.Sweep(ctx)
	if ran != 0 {
		t.Errorf("%d passes ran on a cancelled context, want 0", ran)
	}
}
