package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type testJob struct {
	run func(ctx context.Context) error
}

func (j *testJob) Execute(ctx context.Context) error { return j.run(ctx) }
func (j *testJob) Description() string                { return "test job" }
func (j *testJob) UserID() string                     { return "user-1" }

func TestWorkerPool_RunsJobs(t *testing.T) {
	wp := NewWorkerPool(3, 10, time.Second, zap.NewNop())
	wp.Start()

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := wp.Submit(&testJob{run: func(context.Context) error {
			defer wg.Done()
			count.Add(1)
			return nil
		}})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	wg.Wait()
	wp.ShutdownWithTimeout(time.Second)

	if got := count.Load(); got != 10 {
		t.Errorf("executed %d jobs, want 10", got)
	}
}

func TestWorkerPool_QueueFull(t *testing.T) {
	// not started: nothing drains the queue
	wp := NewWorkerPool(1, 1, time.Second, zap.NewNop())
	noop := &testJob{run: func(context.Context) error { return nil }}

	if err := wp.Submit(noop); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if err := wp.Submit(noop); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Submit() error = %v, want ErrQueueFull", err)
	}
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	wp := NewWorkerPool(1, 1, time.Second, zap.NewNop())
	wp.Start()
	wp.ShutdownWithTimeout(time.Second)

	err := wp.Submit(&testJob{run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() error = %v, want ErrPoolClosed", err)
	}
}

func TestWorkerPool_JobTimeout(t *testing.T) {
	wp := NewWorkerPool(1, 1, 20*time.Millisecond, zap.NewNop())
	wp.Start()
	defer wp.ShutdownWithTimeout(time.Second)

	result := make(chan error, 1)
	_ = wp.Submit(&testJob{run: func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	}})

	select {
	case err := <-result:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("job ctx error = %v, want DeadlineExceeded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled by its timeout")
	}
}

func TestNewCron_InvalidSpec(t *testing.T) {
	if _, err := NewCron("not a schedule", func(context.Context) {}, zap.NewNop()); err == nil {
		t.Error("NewCron() expected error for invalid spec")
	}
}

func TestWorkerPool_RecoversPanickingJob(t *testing.T) {
	wp := NewWorkerPool(1, 2, time.Second, zap.NewNop())
	wp.Start()
	defer wp.ShutdownWithTimeout(time.Second)

	if err := wp.Submit(&testJob{run: func(context.Context) error { panic("nil map write") }}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// the same worker must still be alive for the next job
	done := make(chan struct{})
	if err := wp.Submit(&testJob{run: func(context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job after panic never ran")
	}
}

func TestRunJob_Panic(t *testing.T) {
	err := runJob(context.Background(), &testJob{run: func(context.Context) error { panic("boom") }})
	if !errors.Is(err, ErrJobPanicked) {
		t.Errorf("runJob() error = %v, want ErrJobPanicked", err)
	}
}
