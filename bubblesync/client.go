package bubblesync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// WorkflowInvoker is the narrow surface the worker needs from the legacy
// platform. A nil error is an explicit ack; failures come back as *RemoteError.
type WorkflowInvoker interface {
	Invoke(ctx context.Context, req WorkflowRequest) error
}

// Client calls the legacy Bubble workflow endpoint:
// POST {base}/api/1.1/wf/{workflow_name} with the entry's parameters.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
}

func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("BUBBLE_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("BUBBLE_API_BASE_URL is required")
	}
	apiKey := strings.TrimSpace(os.Getenv("BUBBLE_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("BUBBLE_API_KEY is required")
	}

	timeout := time.Duration(intFromEnvDefault("BUBBLE_TIMEOUT_SECONDS", 20)) * time.Second

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Invoke sends one workflow request. The timeout on the underlying client
// bounds the call; a timeout surfaces as a retryable RemoteError so a hung
// legacy call is abandoned and retried, never silently dropped.
func (c *Client) Invoke(ctx context.Context, wf WorkflowRequest) error {
	body, err := json.Marshal(map[string]json.RawMessage{
		"parameters": wf.Parameters,
	})
	if err != nil {
		return &RemoteError{Retryable: false, Err: err}
	}

	endpoint := c.baseURL + "/api/1.1/wf/" + wf.WorkflowName
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &RemoteError{Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and transport failures: the request may or may not have
		// been applied; replaying the same snapshot is safe on the legacy side.
		return &RemoteError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &RemoteError{StatusCode: resp.StatusCode, Retryable: true, Body: strings.TrimSpace(string(respBody))}
	default:
		// 4xx: the legacy platform rejected the request as malformed or
		// unprocessable. Retrying burns budget without hope of success.
		return &RemoteError{StatusCode: resp.StatusCode, Retryable: false, Body: strings.TrimSpace(string(respBody))}
	}
}

func intFromEnvDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
