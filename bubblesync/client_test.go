package bubblesync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("BUBBLE_API_BASE_URL", srv.URL)
	t.Setenv("BUBBLE_API_KEY", "test-key")

	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestInvokeRequestShape(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody []byte

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	err := client.Invoke(context.Background(), WorkflowRequest{
		WorkflowName: "proposal_create",
		Parameters:   json.RawMessage(`{"entity_id":"42"}`),
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if gotPath != "/api/1.1/wf/proposal_create" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(gotBody, &envelope); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if string(envelope["parameters"]) != `{"entity_id":"42"}` {
		t.Errorf("parameters = %s", envelope["parameters"])
	}
}

func TestInvokeClassification(t *testing.T) {
	cases := []struct {
		name          string
		status        int
		wantErr       bool
		wantRetryable bool
	}{
		{"ok", 200, false, false},
		{"created", 201, false, false},
		{"server error", 500, true, true},
		{"bad gateway", 502, true, true},
		{"throttled", 429, true, true},
		{"validation rejected", 422, true, false},
		{"bad request", 400, true, false},
		{"not found", 404, true, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				_, _ = w.Write([]byte(`{"reason":"detail"}`))
			})

			err := client.Invoke(context.Background(), WorkflowRequest{
				WorkflowName: "user_update",
				Parameters:   json.RawMessage(`{}`),
			})

			if !c.wantErr {
				if err != nil {
					t.Fatalf("Invoke: %v", err)
				}
				return
			}
			var remote *RemoteError
			if !errors.As(err, &remote) {
				t.Fatalf("error %v is not a RemoteError", err)
			}
			if remote.StatusCode != c.status {
				t.Errorf("status = %d, want %d", remote.StatusCode, c.status)
			}
			if remote.Retryable != c.wantRetryable {
				t.Errorf("retryable = %v, want %v", remote.Retryable, c.wantRetryable)
			}
			if IsRetryable(err) != c.wantRetryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), c.wantRetryable)
			}
		})
	}
}

func TestInvokeTimeoutIsRetryable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.Invoke(ctx, WorkflowRequest{
		WorkflowName: "lease_create",
		Parameters:   json.RawMessage(`{}`),
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsRetryable(err) {
		t.Fatalf("timeout must be retryable, got %v", err)
	}
}
