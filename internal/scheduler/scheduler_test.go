package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func noop(context.Context) error { return nil }

func TestScheduledRuns(t *testing.T) {
	var calls atomic.Int32
	sched := New(nil)
	if err := sched.AddJob("chatbot-sweep", "@every 1s", func(context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	sched.Start(ctx)

	if calls.Load() == 0 {
		t.Fatal("job never fired")
	}
	info := sched.Jobs()[0]
	if info.Runs == 0 || info.Failures != 0 || info.Prev.IsZero() {
		t.Errorf("info = %+v", info)
	}
}

func TestAddJob_ReplacesAndValidates(t *testing.T) {
	sched := New(nil)
	sched.AddJob("x-poll", "@every 1m", noop)
	sched.AddJob("x-poll", "*/2 * * * *", noop)

	jobs := sched.Jobs()
	if len(jobs) != 1 || jobs[0].Schedule != "*/2 * * * *" {
		t.Errorf("jobs = %+v", jobs)
	}

	if err := sched.AddJob("bad", "every minute", noop); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}

	sched.RemoveJob("x-poll")
	sched.RemoveJob("never-added")
	if sched.JobCount() != 0 {
		t.Errorf("JobCount after remove = %d", sched.JobCount())
	}
}

func TestRunNow_RecordsOutcome(t *testing.T) {
	sched := New(nil)
	boom := errors.New("x api: 503")
	fail := true
	sched.AddJob("x-poll", "@every 1h", func(ctx context.Context) error {
		if fail {
			return boom
		}
		return nil
	})

	if err := sched.RunNow("x-poll"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	info := sched.Jobs()[0]
	if info.Runs != 1 || info.Failures != 1 || info.LastError != boom.Error() {
		t.Errorf("after failure = %+v", info)
	}

	fail = false
	if err := sched.RunNow("x-poll"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	info = sched.Jobs()[0]
	if info.Runs != 2 || info.Failures != 1 || info.LastError != "" {
		t.Errorf("after success = %+v", info)
	}

	if err := sched.RunNow("missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("missing job: %v", err)
	}
}

func TestRunNow_Timeout(t *testing.T) {
	sched := New(nil)
	sched.AddJob("slow", "@every 1h", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(20*time.Millisecond))

	if err := sched.RunNow("slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
}

func TestRunNow_NoOverlap(t *testing.T) {
	sched := New(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	sched.AddJob("sweep", "@every 1h", func(context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- sched.RunNow("sweep") }()
	<-started

	if !sched.Jobs()[0].Running {
		t.Error("job should report running")
	}
	if err := sched.RunNow("sweep"); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping run: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
}

func TestRunNow_Panic(t *testing.T) {
	sched := New(nil)
	sched.AddJob("bad", "@every 1h", func(context.Context) error { panic("nil map") })

	if err := sched.RunNow("bad"); err == nil {
		t.Fatal("expected error from panicking job")
	}
	if info := sched.Jobs()[0]; info.Running || info.Failures != 1 {
		t.Errorf("info = %+v", info)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	sched := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
