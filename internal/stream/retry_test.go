package stream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRetryHandler() *RetryHandler {
	h := NewRetryHandler(nil, "test:dlq")
	h.baseDelay = time.Millisecond
	return h
}

func TestRetryWithBackoffRecovers(t *testing.T) {
	h := newTestRetryHandler()

	calls := 0
	err := h.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("mongo unavailable")
		}
		return nil
	}, "1-0", nil)

	if err != nil {
		t.Fatalf("RetryWithBackoff() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoffCancelled(t *testing.T) {
	h := newTestRetryHandler()
	h.baseDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := h.RetryWithBackoff(ctx, func() error {
		calls++
		cancel()
		return errors.New("boom")
	}, "1-0", nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("RetryWithBackoff() error = %v, want %v", err, context.Canceled)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
