package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func TestHandleFaultRunsRecovery(t *testing.T) {
	var calls int32
	c := New(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil, newLogger())

	performed, err := c.HandleFault(context.Background(), errors.New("gpu gone"))
	if err != nil {
		t.Fatalf("HandleFault: %v", err)
	}
	if !performed {
		t.Fatal("first fault must perform recovery")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("recover calls = %d", calls)
	}
	if got := c.State(); got != StateNormal {
		t.Fatalf("state after recovery = %s", got)
	}
}

func TestHandleFaultPropagatesError(t *testing.T) {
	boom := errors.New("no provider came back")
	c := New(func(ctx context.Context) error { return boom }, nil, newLogger())

	performed, err := c.HandleFault(context.Background(), errors.New("fault"))
	if !performed || !errors.Is(err, boom) {
		t.Fatalf("HandleFault = %v, %v", performed, err)
	}
	// A failed recovery still releases the state for the next fault.
	if got := c.State(); got != StateNormal {
		t.Fatalf("state = %s", got)
	}
}

func TestConcurrentFaultsDeduplicated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	c := New(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return nil
	}, nil, newLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if performed, err := c.HandleFault(context.Background(), errors.New("first")); !performed || err != nil {
			t.Errorf("first HandleFault = %v, %v", performed, err)
		}
	}()

	<-started
	if got := c.State(); got != StateRecovering {
		t.Fatalf("state during recovery = %s", got)
	}
	// Faults raised while recovering are ignored, not queued.
	for i := 0; i < 3; i++ {
		performed, err := c.HandleFault(context.Background(), errors.New("duplicate"))
		if performed || err != nil {
			t.Fatalf("duplicate HandleFault = %v, %v", performed, err)
		}
	}
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("recover calls = %d, want 1", calls)
	}

	// A fault after the window completes performs a fresh recovery.
	c.onRecover = func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	if performed, err := c.HandleFault(context.Background(), errors.New("later")); !performed || err != nil {
		t.Fatalf("post-window HandleFault = %v, %v", performed, err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("recover calls = %d, want 2", calls)
	}
}

func TestResetApplication(t *testing.T) {
	var resets int
	boom := errors.New("wipe failed")
	c := New(nil, func(ctx context.Context) error {
		resets++
		if resets > 1 {
			return boom
		}
		return nil
	}, newLogger())

	if err := c.ResetApplication(context.Background()); err != nil {
		t.Fatalf("ResetApplication: %v", err)
	}
	if err := c.ResetApplication(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("second ResetApplication = %v, want %v", err, boom)
	}
	if resets != 2 {
		t.Fatalf("resets = %d", resets)
	}
}
