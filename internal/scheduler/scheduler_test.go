package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewValidates(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Fatal("zero interval without cron should fail")
	}
	if _, err := New(Options{Cron: "not a cron"}, zerolog.Nop()); err == nil {
		t.Fatal("invalid cron should fail")
	}
	if _, err := New(Options{Cron: "@every 10m"}, zerolog.Nop()); err != nil {
		t.Fatalf("descriptor cron: %v", err)
	}
	if _, err := New(Options{Cron: "*/5 * * * *"}, zerolog.Nop()); err != nil {
		t.Fatalf("standard cron: %v", err)
	}
}

func TestNextTickAligned(t *testing.T) {
	s, err := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 6, 1, 10, 7, 30, 0, time.UTC)
	if got, want := s.nextTick(now), time.Date(2024, 6, 1, 10, 10, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("nextTick = %s, want %s", got, want)
	}

	onBoundary := time.Date(2024, 6, 1, 10, 10, 0, 0, time.UTC)
	if got, want := s.nextTick(onBoundary), onBoundary.Add(5*time.Minute); !got.Equal(want) {
		t.Fatalf("nextTick on boundary = %s, want %s", got, want)
	}

	if got := s.bucketStart(now); !got.Equal(time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC)) {
		t.Fatalf("bucketStart = %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s, err := New(Options{Interval: time.Minute}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 6, 1, 10, 7, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("nextTick = %s", got)
	}
	if got := s.bucketStart(now); !got.Equal(now) {
		t.Fatalf("bucketStart = %s", got)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	s, err := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if ticks.Add(1) == 3 {
				cancel()
			}
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if ticks.Load() < 3 {
		t.Fatalf("ticks = %d", ticks.Load())
	}
}

func TestRunHonoursStartupDelayCancellation(t *testing.T) {
	s, err := New(Options{Interval: time.Minute, StartupDelay: time.Hour}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(context.Context, time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}
