package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"webguide/pkg/apperr"
)

func TestCallReturnsHandlerResult(t *testing.T) {
	cmd := New("double", time.Second, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})

	got, err := cmd.Call(context.Background(), 21)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestCallPassesHandlerErrorThrough(t *testing.T) {
	boom := errors.New("boom")
	cmd := New("fail", time.Second, func(context.Context, struct{}) (string, error) {
		return "", boom
	})

	if _, err := cmd.Call(context.Background(), struct{}{}); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestCallTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	cmd := New("stuck", 20*time.Millisecond, func(context.Context, int) (int, error) {
		<-release
		return 1, nil
	})

	start := time.Now()
	_, err := cmd.Call(context.Background(), 0)
	if !apperr.IsCode(err, apperr.CodeTimeout) {
		t.Fatalf("expected timeout code, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("call did not honour its timeout")
	}
}

func TestCallParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := New("cancelled", time.Second, func(ctx context.Context, _ int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	_, err := cmd.Call(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNilHandler(t *testing.T) {
	var cmd *Command[int, int]
	if _, err := cmd.Call(context.Background(), 1); !apperr.IsCode(err, apperr.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
