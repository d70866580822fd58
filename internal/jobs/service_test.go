package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	logx "inspectd/pkg/logx"
)

func startService(t *testing.T) *Service {
	t.Helper()
	s := New(Config{Workers: 2, QueueSize: 16}, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduleFires(t *testing.T) {
	s := startService(t)
	var fired atomic.Int32
	err := s.Schedule("j1", time.Now().Add(20*time.Millisecond), func(ctx context.Context) error {
		fired.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
	waitFor(t, time.Second, func() bool { return len(s.Pending()) == 0 })
}

func TestScheduleReplaceLastWriteWins(t *testing.T) {
	s := startService(t)
	var first, second atomic.Int32

	if err := s.Schedule("j1", time.Now().Add(30*time.Millisecond), func(ctx context.Context) error {
		first.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Schedule("j1", time.Now().Add(60*time.Millisecond), func(ctx context.Context) error {
		second.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return second.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := first.Load(); got != 0 {
		t.Fatalf("replaced job fired %d times", got)
	}
	if got := second.Load(); got != 1 {
		t.Fatalf("winning job fired %d times", got)
	}
}

func TestSchedulePastFiresImmediately(t *testing.T) {
	s := startService(t)
	var fired atomic.Int32
	if err := s.Schedule("j1", time.Now().Add(-time.Hour), func(ctx context.Context) error {
		fired.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
}

func TestCancel(t *testing.T) {
	s := startService(t)
	var fired atomic.Int32
	if err := s.Schedule("j1", time.Now().Add(40*time.Millisecond), func(ctx context.Context) error {
		fired.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !s.Cancel("j1") {
		t.Fatal("cancel of pending job must report true")
	}
	if s.Cancel("j1") {
		t.Fatal("second cancel must be a no-op")
	}
	if s.Cancel("unknown") {
		t.Fatal("cancel of unknown name must be a no-op")
	}
	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("cancelled job fired %d times", got)
	}
}

func TestJobErrorIsSwallowed(t *testing.T) {
	s := startService(t)
	var calls atomic.Int32
	if err := s.Schedule("boom", time.Now(), func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("provider down")
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Schedule("ok", time.Now().Add(20*time.Millisecond), func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	// both jobs run; the first one's error does not break the pool
	waitFor(t, time.Second, func() bool { return calls.Load() == 2 })
}

func TestJobPanicIsRecovered(t *testing.T) {
	s := startService(t)
	var fired atomic.Int32
	if err := s.Schedule("panics", time.Now(), func(ctx context.Context) error {
		panic("boom")
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Schedule("after", time.Now().Add(20*time.Millisecond), func(ctx context.Context) error {
		fired.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
}

func TestScheduleValidation(t *testing.T) {
	s := startService(t)
	if err := s.Schedule("", time.Now(), func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("empty name must fail")
	}
	if err := s.Schedule("j1", time.Time{}, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("zero time must fail")
	}
	if err := s.Schedule("j1", time.Now(), nil); err == nil {
		t.Fatal("nil job must fail")
	}
}

func TestAddDailyValidatesSpec(t *testing.T) {
	s := startService(t)
	if err := s.AddDaily("sweep", "02:00", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := s.AddDaily("sweep", "25:00", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("bad hour must fail")
	}
	if err := s.AddDaily("sweep", "2am", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("bad format must fail")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(Config{}, logx.Nop())
	s.Start(context.Background())
	ctx := context.Background()
	s.Stop(ctx)
	s.Stop(ctx)
}
