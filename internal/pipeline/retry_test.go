package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gvmoraes79/FabricaEbook/internal/generate"
)

func TestBackoffBounds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for attempt, base := range []time.Duration{100, 200, 400, 800, 1000, 1000} {
		base *= time.Millisecond
		for range 20 {
			got := p.Backoff(attempt)
			if got < base || got >= base+base/2 {
				t.Fatalf("attempt %d: backoff %v outside [%v, %v)", attempt, got, base, base+base/2)
			}
		}
	}
}

func TestRetry_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastRetry(), testLogger(), "outline", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &generate.RetryableError{StatusCode: 429, Message: "rate limited"}
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("expected ok, got %q, %v", v, err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableReturnsAtOnce(t *testing.T) {
	calls := 0
	bad := &generate.MalformedResponseError{Op: "outline", Err: errors.New("no chapters")}
	_, err := Retry(context.Background(), fastRetry(), testLogger(), "outline", func(context.Context) (int, error) {
		calls++
		return 0, bad
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	var mr *generate.MalformedResponseError
	if !errors.As(err, &mr) {
		t.Errorf("expected the malformed response error, got %v", err)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetry(), testLogger(), "chapter", func(context.Context) (int, error) {
		calls++
		return 0, &generate.RetryableError{StatusCode: 503, Message: "down"}
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	var gf *GenerationFailedError
	if !errors.As(err, &gf) {
		t.Fatalf("expected GenerationFailedError, got %v", err)
	}
	if gf.Op != "chapter" || gf.Attempts != 3 {
		t.Errorf("unexpected error fields %+v", gf)
	}
	if !generate.IsRetryable(err) {
		t.Error("expected the last transient error to be unwrappable")
	}
}

func TestRetry_CanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Retry(ctx, p, testLogger(), "image", func(context.Context) (int, error) {
		calls++
		return 0, &generate.RetryableError{StatusCode: 500}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
