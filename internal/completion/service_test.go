package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

func TestMockService_Default(t *testing.T) {
	s := NewMockService(nil)
	out, err := s.Complete(context.Background(), "any prompt", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out == "" {
		t.Error("default mock should return a non-empty completion")
	}
}

func TestMockService_CustomRespond(t *testing.T) {
	s := NewMockService(func(prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	out, err := s.Complete(context.Background(), "hi", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "echo: hi" {
		t.Errorf("out = %q", out)
	}
}

func TestMockService_CancelledContext(t *testing.T) {
	s := NewMockService(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Complete(ctx, "p", Options{}); err == nil {
		t.Error("cancelled context should abort the call")
	}
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*OpenAIService, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Setenv("TEST_COMPLETION_KEY", "test-key")
	s, err := NewOpenAIService(&config.CompletionConfig{
		APIKeyEnv: "TEST_COMPLETION_KEY",
		BaseURL:   srv.URL,
		Model:     "test-model",
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, srv
}

func TestOpenAIService_Complete(t *testing.T) {
	s, srv := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"answer\":\"30 days\"}"},"finish_reason":"stop"}]}`)
	})
	defer srv.Close()
	out, err := s.Complete(context.Background(), "prompt", Options{MaxTokens: 100})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"answer":"30 days"}` {
		t.Errorf("out = %q", out)
	}
}

func TestOpenAIService_ContentFilter(t *testing.T) {
	s, srv := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`)
	})
	defer srv.Close()
	_, err := s.Complete(context.Background(), "prompt", Options{})
	if !errors.Is(err, models.ErrCompletionRejected) {
		t.Errorf("content filter should map to ErrCompletionRejected, got %v", err)
	}
}

func TestOpenAIService_ProviderError(t *testing.T) {
	s, srv := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})
	defer srv.Close()
	_, err := s.Complete(context.Background(), "prompt", Options{})
	if !errors.Is(err, models.ErrCompletionUnavailable) {
		t.Errorf("provider error should map to ErrCompletionUnavailable, got %v", err)
	}
}

func TestOpenAIService_Unreachable(t *testing.T) {
	s, srv := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close() // connection refused from here on
	_, err := s.Complete(context.Background(), "prompt", Options{})
	if !errors.Is(err, models.ErrCompletionUnavailable) {
		t.Errorf("unreachable provider should map to ErrCompletionUnavailable, got %v", err)
	}
}

func TestOpenAIService_DeadlineStaysInChain(t *testing.T) {
	s, srv := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server observes the client disconnect and
		// cancels the request context (REVIEW_FINDINGS.md F7).
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Complete(ctx, "prompt", Options{})
	if !errors.Is(err, models.ErrCompletionUnavailable) {
		t.Errorf("slow provider should map to ErrCompletionUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("deadline must stay reachable through the chain, got %v", err)
	}
}

func TestNewOpenAIService_MissingKey(t *testing.T) {
	t.Setenv("TEST_COMPLETION_KEY", "")
	_, err := NewOpenAIService(&config.CompletionConfig{APIKeyEnv: "TEST_COMPLETION_KEY"})
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("missing API key should be a configuration error, got %v", err)
	}
}

func TestNewService_UnknownProvider(t *testing.T) {
	_, err := NewService(&config.CompletionConfig{Provider: "nope"})
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("unknown provider should be a configuration error, got %v", err)
	}
}
