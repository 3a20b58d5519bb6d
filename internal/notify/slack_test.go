package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gus-bms/db-checker/internal/model"
)

func TestNewSlack(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		s := NewSlack("https://hooks.example.com/x")

		if s.webhookURL != "https://hooks.example.com/x" {
			t.Errorf("webhookURL = %q, want %q", s.webhookURL, "https://hooks.example.com/x")
		}
		if s.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", s.httpClient.Timeout, 5*time.Second)
		}
		if s.maxRetries != 2 {
			t.Errorf("maxRetries = %d, want %d", s.maxRetries, 2)
		}
		if s.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		s := NewSlack("u",
			WithTimeout(time.Second),
			WithRetries(4, 20*time.Millisecond),
			WithLogger(logger),
		)
		if s.httpClient.Timeout != time.Second {
			t.Errorf("Timeout = %v, want %v", s.httpClient.Timeout, time.Second)
		}
		if s.maxRetries != 4 || s.retryBackoff != 20*time.Millisecond {
			t.Errorf("retries = %d/%v, want 4/20ms", s.maxRetries, s.retryBackoff)
		}
		if s.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		hc := &http.Client{}
		s := NewSlack("u", WithHTTPClient(hc))
		if s.httpClient != hc {
			t.Error("custom HTTP client not set")
		}
	})
}

func TestWebhookError(t *testing.T) {
	err := &WebhookError{StatusCode: 404, Message: "Not Found"}
	if err.Error() != "slack webhook error 404: Not Found" {
		t.Errorf("Error() = %q", err.Error())
	}

	tests := []struct {
		code int
		want bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{403, false},
		{404, false},
	}
	for _, tt := range tests {
		if got := (&WebhookError{StatusCode: tt.code}).IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.want)
		}
	}
}

// webhookBody mirrors the JSON Slack receives.
type webhookBody struct {
	Attachments []struct {
		Color  string `json:"color"`
		Blocks []struct {
			Type string `json:"type"`
			Text struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"text"`
		} `json:"blocks"`
	} `json:"attachments"`
}

func TestSlack_NotifyPayload(t *testing.T) {
	var got webhookBody
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("undecodable payload: %v", err)
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	s := NewSlack(server.URL)
	err := s.Notify(context.Background(), model.LevelCritical, "DB Alert (CRITICAL)", "time: now\n• Threads running: 120")
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(got.Attachments))
	}
	a := got.Attachments[0]
	if a.Color != ColorCritical {
		t.Errorf("Color = %q, want %q", a.Color, ColorCritical)
	}
	if len(a.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(a.Blocks))
	}
	if a.Blocks[0].Type != "header" || a.Blocks[0].Text.Type != "plain_text" || a.Blocks[0].Text.Text != "DB Alert (CRITICAL)" {
		t.Errorf("header block = %+v", a.Blocks[0])
	}
	if a.Blocks[1].Type != "section" || a.Blocks[1].Text.Type != "mrkdwn" || a.Blocks[1].Text.Text != "time: now\n• Threads running: 120" {
		t.Errorf("section block = %+v", a.Blocks[1])
	}
}

func TestColorFor(t *testing.T) {
	if got := ColorFor(model.LevelWarn); got != ColorWarn {
		t.Errorf("ColorFor(warn) = %q, want %q", got, ColorWarn)
	}
	if got := ColorFor(model.LevelCritical); got != ColorCritical {
		t.Errorf("ColorFor(critical) = %q, want %q", got, ColorCritical)
	}
}

func TestSlack_Retry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		s := NewSlack(server.URL, WithRetries(3, 10*time.Millisecond))
		if err := s.Notify(context.Background(), model.LevelWarn, "t", "b"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("invalid_token"))
		}))
		defer server.Close()

		s := NewSlack(server.URL, WithRetries(3, 10*time.Millisecond))
		err := s.Notify(context.Background(), model.LevelWarn, "t", "b")
		if !errors.Is(err, model.ErrDispatch) {
			t.Fatalf("error = %v, want ErrDispatch", err)
		}
		var whErr *WebhookError
		if !errors.As(err, &whErr) || whErr.StatusCode != http.StatusForbidden {
			t.Errorf("error = %v, want 403 WebhookError", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		s := NewSlack(server.URL, WithRetries(2, 10*time.Millisecond))
		err := s.Notify(context.Background(), model.LevelWarn, "t", "b")
		var whErr *WebhookError
		if !errors.As(err, &whErr) || whErr.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("error = %v, want 429 WebhookError", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		s := NewSlack(server.URL, WithRetries(5, time.Second))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := s.Notify(ctx, model.LevelWarn, "t", "b")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})

	t.Run("transport errors are not retried", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		s := NewSlack(url, WithRetries(3, time.Second))
		start := time.Now()
		err := s.Notify(context.Background(), model.LevelWarn, "t", "b")
		if !errors.Is(err, model.ErrDispatch) {
			t.Fatalf("error = %v, want ErrDispatch", err)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("elapsed = %v, want no backoff wait", elapsed)
		}
	})
}
