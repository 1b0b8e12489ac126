package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInvoke(t *testing.T) {
	var got InvokeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/invoke" || r.Method != "POST" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("missing bearer token, got %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(Result{
			Status:           "completed",
			Output:           "done",
			StructuredResult: json.RawMessage(`{"files":3}`),
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", 5*time.Second)
	res, err := c.Invoke(context.Background(), InvokeRequest{
		Prompt:          "implement the widget",
		Model:           "swift-core",
		Tier:            "standard",
		MaxOutputTokens: 16384,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Completed() || res.Output != "done" {
		t.Errorf("unexpected result %+v", res)
	}
	if got.Tier != "standard" || got.MaxOutputTokens != 16384 {
		t.Errorf("request not forwarded intact: %+v", got)
	}
}

func TestInvokeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "executor overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	if _, err := c.Invoke(context.Background(), InvokeRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestInvokeFailedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Result{Status: "failed", Error: "agent crashed"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	res, err := c.Invoke(context.Background(), InvokeRequest{Prompt: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Completed() {
		t.Error("failed envelope must not report completed")
	}
	if res.Error != "agent crashed" {
		t.Errorf("error passthrough lost: %+v", res)
	}
}
