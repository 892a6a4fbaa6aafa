package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewBulkhead_Defaults(t *testing.T) {
	b, err := NewBulkhead("db", BulkheadConfig{})
	if err != nil {
		t.Fatalf("NewBulkhead() error = %v", err)
	}

	if b.config.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", b.config.MaxConcurrent)
	}
	if b.config.MaxQueue != 0 {
		t.Errorf("MaxQueue = %d, want 0", b.config.MaxQueue)
	}
	if b.config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", b.config.Timeout)
	}
}

func TestNewBulkhead_InvalidConfig(t *testing.T) {
	if _, err := NewBulkhead("bad", BulkheadConfig{MaxConcurrent: -1}); err == nil {
		t.Error("expected error for negative MaxConcurrent")
	}
	if _, err := NewBulkhead("bad", BulkheadConfig{MaxQueue: -1}); err == nil {
		t.Error("expected error for negative MaxQueue")
	}
	if _, err := NewBulkhead("bad", BulkheadConfig{Timeout: -time.Second}); err == nil {
		t.Error("expected error for negative Timeout")
	}
}

func TestBulkhead_Execute(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 1})

	executed := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		executed = true
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if !executed {
		t.Error("operation was not executed")
	}

	stats := b.Stats()
	if stats.Submitted != 1 || stats.Completed != 1 {
		t.Errorf("stats = submitted %d, completed %d, want 1 and 1", stats.Submitted, stats.Completed)
	}
	if stats.Executing != 0 {
		t.Errorf("Executing after completion = %d, want 0", stats.Executing)
	}
}

func TestBulkhead_RejectsWhenSaturated(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 2, MaxQueue: 1, Timeout: 5 * time.Second})

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	results := make(chan error, 4)

	// Occupy both execution slots and the single queue slot.
	for i := 0; i < 3; i++ {
		go func() {
			results <- b.Execute(context.Background(), func(ctx context.Context) error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}

	// Wait until both executing slots are actually held.
	<-started
	<-started
	waitForQueued(t, b, 1)

	// Fourth submission finds executing and queue both full.
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("op invoked despite rejection")
		return nil
	})
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Execute() error = %v, want ErrBulkheadFull", err)
	}

	close(release)
	for i := 0; i < 3; i++ {
		if err := <-results; err != nil {
			t.Errorf("admitted Execute() error = %v", err)
		}
	}

	stats := b.Stats()
	if stats.Completed != 3 {
		t.Errorf("Completed = %d, want 3", stats.Completed)
	}
	if stats.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", stats.Rejected)
	}
}

func TestBulkhead_TimeoutReclaimsSlot(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 1, Timeout: 20 * time.Millisecond})

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, ErrBulkheadTimeout) {
		t.Fatalf("Execute() error = %v, want ErrBulkheadTimeout", err)
	}

	// The freed slot must be usable by the next caller.
	if err := b.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Execute() after timeout error = %v", err)
	}

	stats := b.Stats()
	if stats.TimedOut != 1 {
		t.Errorf("TimedOut = %d, want 1", stats.TimedOut)
	}
	if stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}
	if stats.Executing != 0 {
		t.Errorf("Executing = %d, want 0", stats.Executing)
	}
}

func TestBulkhead_OperationErrorCountsFailed(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 1})
	testErr := errors.New("boom")

	if err := b.Execute(context.Background(), func(ctx context.Context) error { return testErr }); err != testErr {
		t.Errorf("Execute() error = %v, want %v", err, testErr)
	}

	stats := b.Stats()
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if stats.Executing != 0 {
		t.Errorf("Executing = %d, want 0", stats.Executing)
	}
}

func TestBulkhead_QueueThenExecute(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 1, MaxQueue: 1})

	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- b.Execute(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	waitForExecuting(t, b, 1)

	second := make(chan error, 1)
	go func() {
		second <- b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	}()
	waitForQueued(t, b, 1)

	close(release)
	if err := <-first; err != nil {
		t.Errorf("first Execute() error = %v", err)
	}
	if err := <-second; err != nil {
		t.Errorf("queued Execute() error = %v", err)
	}

	stats := b.Stats()
	if stats.Completed != 2 {
		t.Errorf("Completed = %d, want 2", stats.Completed)
	}
	if stats.Queued != 0 {
		t.Errorf("Queued = %d, want 0", stats.Queued)
	}
}

func TestBulkhead_QueueTimeout(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{
		MaxConcurrent: 1,
		MaxQueue:      1,
		QueueTimeout:  20 * time.Millisecond,
	})

	release := make(chan struct{})
	defer close(release)
	first := make(chan error, 1)
	go func() {
		first <- b.Execute(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	waitForExecuting(t, b, 1)

	// A bounded queue wait surfaces as a rejection, not a timeout.
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("op invoked after queue timeout")
		return nil
	})
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Execute() error = %v, want ErrBulkheadFull", err)
	}

	stats := b.Stats()
	if stats.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", stats.Rejected)
	}
	if stats.Queued != 0 {
		t.Errorf("Queued = %d, want 0", stats.Queued)
	}
}

func TestBulkhead_CancelledWhileQueued(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 1, MaxQueue: 1})

	release := make(chan struct{})
	defer close(release)
	first := make(chan error, 1)
	go func() {
		first <- b.Execute(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	waitForExecuting(t, b, 1)

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan error, 1)
	go func() {
		second <- b.Execute(ctx, func(ctx context.Context) error {
			t.Error("op invoked after cancellation")
			return nil
		})
	}()
	waitForQueued(t, b, 1)
	cancel()

	if err := <-second; !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}

	// The queued reservation is released without ever entering executing.
	stats := b.Stats()
	if stats.Queued != 0 {
		t.Errorf("Queued = %d, want 0", stats.Queued)
	}
	if stats.Executing != 1 {
		t.Errorf("Executing = %d, want 1", stats.Executing)
	}
}

func TestBulkhead_CancelledWhileExecuting(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 1})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := b.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond) // ignores cancellation; the slot must still free
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}

	if stats := b.Stats(); stats.Executing != 0 {
		t.Errorf("Executing = %d, want 0", stats.Executing)
	}
	if err := b.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Execute() after cancellation error = %v", err)
	}
}

func TestBulkhead_ConcurrencyBound(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 5, MaxQueue: 100})

	var (
		wg         sync.WaitGroup
		maxActive  int32
		currActive int32
	)

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), func(ctx context.Context) error {
				curr := atomic.AddInt32(&currActive, 1)
				defer atomic.AddInt32(&currActive, -1)

				for {
					max := atomic.LoadInt32(&maxActive)
					if curr <= max || atomic.CompareAndSwapInt32(&maxActive, max, curr) {
						break
					}
				}

				time.Sleep(5 * time.Millisecond)
				return nil
			})
			if err != nil && !errors.Is(err, ErrBulkheadFull) {
				t.Errorf("Execute() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&maxActive); max > 5 {
		t.Errorf("max concurrent = %d, want <= 5", max)
	}
}

func TestBulkhead_Shutdown(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 2})

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	waitForExecuting(t, b, 1)

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- b.Shutdown(context.Background())
	}()
	waitForClosed(t, b)

	// New work is refused immediately.
	if err := b.Execute(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, ErrBulkheadShutdown) {
		t.Errorf("Execute() after shutdown error = %v, want ErrBulkheadShutdown", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("in-flight Execute() error = %v", err)
	}
	if err := <-shutdownDone; err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestBulkhead_ShutdownTimeout(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 1})

	release := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	waitForExecuting(t, b, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want context.DeadlineExceeded", err)
	}
	close(release)
}

func TestBulkhead_DurationStats(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 1})

	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		})
	}

	d := b.Stats().Durations
	if d.Samples != 3 {
		t.Errorf("Samples = %d, want 3", d.Samples)
	}
	if d.Min <= 0 {
		t.Errorf("Min = %v, want > 0", d.Min)
	}
	if d.Max < d.Min {
		t.Errorf("Max %v < Min %v", d.Max, d.Min)
	}
	if d.Average < d.Min || d.Average > d.Max {
		t.Errorf("Average %v outside [%v, %v]", d.Average, d.Min, d.Max)
	}
}

func TestBulkhead_Run(t *testing.T) {
	b, _ := NewBulkhead("db", BulkheadConfig{MaxConcurrent: 1})

	got, err := Run(context.Background(), b, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Run() = %d, want 42", got)
	}
}

// waitForExecuting polls the executing gauge; admission happens in another
// goroutine in these tests.
func waitForExecuting(t *testing.T, b *Bulkhead, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if b.Stats().Executing == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("executing never reached %d", want)
}

func waitForQueued(t *testing.T, b *Bulkhead, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if b.Stats().Queued == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queued never reached %d", want)
}

func waitForClosed(t *testing.T, b *Bulkhead) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("bulkhead never closed")
}
