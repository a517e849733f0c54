package httpx

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, false},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{599, true},
		{600, false},
	}
	for _, c := range cases {
		if got := IsRetryableHTTPStatus(c.code); got != c.want {
			t.Fatalf("status %d: retryable=%v, want %v", c.code, got, c.want)
		}
	}
}

func TestIsPermanentAuthStatus(t *testing.T) {
	for _, code := range []int{401, 403} {
		if !IsPermanentAuthStatus(code) {
			t.Fatalf("status %d should be permanent", code)
		}
	}
	for _, code := range []int{400, 404, 429, 500} {
		if IsPermanentAuthStatus(code) {
			t.Fatalf("status %d should not be permanent auth", code)
		}
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	base, max := 500*time.Millisecond, 20*time.Second
	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		20 * time.Second,
		20 * time.Second,
	}
	for attempt, w := range want {
		if got := Backoff(attempt, base, max); got != w {
			t.Fatalf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}

func TestRetryAfterDurationHonorsHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")
	if got := RetryAfterDuration(resp, time.Second, time.Minute); got != 3*time.Second {
		t.Fatalf("got %v, want 3s", got)
	}
	if got := RetryAfterDuration(resp, time.Second, 2*time.Second); got != 2*time.Second {
		t.Fatalf("cap ignored: got %v", got)
	}
	if got := RetryAfterDuration(nil, time.Second, time.Minute); got != time.Second {
		t.Fatalf("fallback ignored: got %v", got)
	}
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Minute); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
