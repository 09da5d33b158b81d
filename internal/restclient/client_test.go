package restclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, "test", testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := c.GetJSON(context.Background(), "/v1/ping", &result); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if !result.OK {
		t.Error("GetJSON() did not decode response body")
	}
}

func TestClientGetJSONErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, "test", testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var result struct{}
	err = c.GetJSON(context.Background(), "/v1/missing", &result)
	if err == nil {
		t.Fatal("GetJSON() error = nil, want 404 APIError")
	}
	var apiErr *APIError
	if !isAPIError(err, &apiErr) {
		t.Fatalf("GetJSON() error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func isAPIError(err error, target **APIError) bool {
	ae, ok := err.(*APIError)
	if ok {
		*target = ae
	}
	return ok
}

func TestClientGetBytesNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, "test", testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	body, status, err := c.GetBytes(context.Background(), "/trl/v0/data/abc")
	if err != nil {
		t.Fatalf("GetBytes() error = %v", err)
	}
	if status != http.StatusNotModified {
		t.Errorf("status = %d, want 304", status)
	}
	if len(body) != 0 {
		t.Errorf("body = %q, want empty", body)
	}
}

func TestClassifyErrorRetryAuth(t *testing.T) {
	if got := ClassifyError(ErrUnauthorized); got != RetryAuth {
		t.Errorf("ClassifyError(ErrUnauthorized) = %v, want RetryAuth", got)
	}
}

func TestClassifyErrorServerIsTransient(t *testing.T) {
	err := &APIError{StatusCode: 503}
	if got := ClassifyError(err); got != RetryTransient {
		t.Errorf("ClassifyError(503) = %v, want RetryTransient", got)
	}
}

func TestClassifyErrorNonAPIIsTransient(t *testing.T) {
	if got := ClassifyError(io.ErrUnexpectedEOF); got != RetryTransient {
		t.Errorf("ClassifyError(non-API error) = %v, want RetryTransient", got)
	}
}
