package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

// gatewayError mirrors the chain client's status-carrying error.
type gatewayError struct {
	status int
}

func (e *gatewayError) Error() string {
	return fmt.Sprintf("gateway returned status %d", e.status)
}

func (e *gatewayError) StatusCode() int { return e.status }

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseBackoff != 500*time.Millisecond {
		t.Errorf("expected BaseBackoff=500ms, got %v", cfg.BaseBackoff)
	}
	if cfg.MaxBackoff != 5*time.Second {
		t.Errorf("expected MaxBackoff=5s, got %v", cfg.MaxBackoff)
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_RecoversFromGatewayOutage(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  100 * time.Millisecond,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return &gatewayError{status: http.StatusServiceUnavailable}
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ExhaustsAllAttempts(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  100 * time.Millisecond,
	}

	attempts := 0
	originalErr := errors.New("read tcp: connection reset by peer")
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return originalErr
	})

	if err == nil {
		t.Error("expected error, got nil")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, originalErr) {
		t.Errorf("expected wrapped original error, got %v", err)
	}
}

func TestDo_StopsOnClientError(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  100 * time.Millisecond,
	}

	attempts := 0
	originalErr := &gatewayError{status: http.StatusNotFound}
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return originalErr
	})

	if attempts != 1 {
		t.Errorf("expected 1 attempt for a 404, got %d", attempts)
	}
	if !errors.Is(err, originalErr) {
		t.Errorf("expected original error, got %v", err)
	}
}

func TestDo_StopsOnMalformedResponse(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  100 * time.Millisecond,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("failed to decode works page: invalid character '<'")
	})

	if err == nil {
		t.Error("expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for a decode failure, got %d", attempts)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts: 5,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  1 * time.Second,
	}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return &gatewayError{status: http.StatusBadGateway}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts before cancellation, got %d", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"gateway 429", &gatewayError{status: http.StatusTooManyRequests}, true},
		{"gateway 500", &gatewayError{status: http.StatusInternalServerError}, true},
		{"gateway 502", &gatewayError{status: http.StatusBadGateway}, true},
		{"gateway 503", &gatewayError{status: http.StatusServiceUnavailable}, true},
		{"gateway 504", &gatewayError{status: http.StatusGatewayTimeout}, true},
		{"gateway 400", &gatewayError{status: http.StatusBadRequest}, false},
		{"gateway 404", &gatewayError{status: http.StatusNotFound}, false},
		{
			"wrapped gateway 503",
			fmt.Errorf("failed to fetch works page: %w", &gatewayError{status: http.StatusServiceUnavailable}),
			true,
		},
		{
			"net timeout",
			&net.OpError{Op: "read", Err: timeoutErr{}},
			true,
		},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8080: connection refused"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"broken pipe", errors.New("write tcp: broken pipe"), true},
		{"decode failure", errors.New("failed to decode works page: invalid character '<'"), false},
		{"parse failure", errors.New("failed to parse gateway URL: missing scheme"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// timeoutErr satisfies net.Error's timeout check.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		base    time.Duration
		max     time.Duration
		attempt int
		minExp  time.Duration
		maxExp  time.Duration
	}{
		{
			name:    "first retry",
			base:    500 * time.Millisecond,
			max:     5 * time.Second,
			attempt: 1,
			minExp:  500 * time.Millisecond,
			maxExp:  1 * time.Second,
		},
		{
			name:    "second retry",
			base:    500 * time.Millisecond,
			max:     5 * time.Second,
			attempt: 2,
			minExp:  1 * time.Second,
			maxExp:  2 * time.Second,
		},
		{
			name:    "capped at max before jitter",
			base:    500 * time.Millisecond,
			max:     5 * time.Second,
			attempt: 4,
			minExp:  2500 * time.Millisecond,
			maxExp:  5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for i := 0; i < 10; i++ {
				got := calculateBackoff(tt.base, tt.max, tt.attempt)
				if got < tt.minExp || got > tt.maxExp {
					t.Errorf("calculateBackoff(%v, %v, %d) = %v, want between %v and %v",
						tt.base, tt.max, tt.attempt, got, tt.minExp, tt.maxExp)
				}
			}
		})
	}
}

func TestCalculateBackoff_JitterVariance(t *testing.T) {
	t.Parallel()
	results := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		results[calculateBackoff(500*time.Millisecond, 5*time.Second, 2)] = true
	}

	if len(results) < 5 {
		t.Errorf("expected jitter to produce variance, but only got %d unique values", len(results))
	}
}
