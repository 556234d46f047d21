package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGoRunsAndWaits(t *testing.T) {
	s := New(context.Background())

	ran := make(chan struct{})
	s.Go("worker", func(ctx context.Context) error {
		close(ran)
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Active() != 0 {
		t.Fatalf("expected no active goroutines, got %d", s.Active())
	}
}

func TestFirstErrorWins(t *testing.T) {
	s := New(context.Background())

	errBoom := errors.New("boom")
	s.Go("bad", func(ctx context.Context) error { return errBoom })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Stop(ctx)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))

	s.Go("bad", func(ctx context.Context) error { return errors.New("fail fast") })
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled after first error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err == nil {
		t.Fatal("expected the first error to surface from Stop")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))

	s.Go("panicky", func(ctx context.Context) error { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Stop(ctx)
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestCanceledReturnIsClean(t *testing.T) {
	s := New(context.Background())

	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("context.Canceled should not count as failure, got %v", err)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	s := New(context.Background())

	block := make(chan struct{})
	s.Go0("stuck", func(ctx context.Context) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(block)
}
