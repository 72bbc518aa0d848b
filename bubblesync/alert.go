package bubblesync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AlertMessage is one consolidated operator alert: every collected failure
// for one correlation id, rolled up.
type AlertMessage struct {
	CorrelationId string
	Failures      []Failure
}

// Text renders the alert for a chat channel.
func (m AlertMessage) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Legacy sync: %d entr", len(m.Failures))
	if len(m.Failures) == 1 {
		b.WriteString("y")
	} else {
		b.WriteString("ies")
	}
	fmt.Fprintf(&b, " dead-lettered (correlation %s)\n", m.CorrelationId)
	for _, f := range m.Failures {
		fmt.Fprintf(&b, "• %s/%s %s [%s]: %s\n", f.EntityType, f.EntityId, f.Operation, f.ErrorClass, f.Message)
	}
	return b.String()
}

// AlertSink posts operator alerts. Posting is best-effort: a sink failure is
// logged by the caller and never propagates into the queue pipeline.
type AlertSink interface {
	Post(ctx context.Context, msg AlertMessage) error
}

// WebhookSink posts alerts to a team chat incoming-webhook URL.
type WebhookSink struct {
	url  string
	http *http.Client
}

func NewWebhookSink() (*WebhookSink, error) {
	url := strings.TrimSpace(os.Getenv("ALERT_WEBHOOK_URL"))
	if url == "" {
		return nil, errors.New("ALERT_WEBHOOK_URL is required")
	}
	return &WebhookSink{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// LogSink writes alerts to the service log. Used when no webhook is
// configured so the pipeline still surfaces dead letters somewhere.
type LogSink struct {
	Logger *logrus.Logger
}

func (s LogSink) Post(ctx context.Context, msg AlertMessage) error {
	s.Logger.WithFields(logrus.Fields{
		"field":          "SyncAlert",
		"correlation_id": msg.CorrelationId,
		"failures":       len(msg.Failures),
	}).Error(msg.Text())
	return nil
}

func (s *WebhookSink) Post(ctx context.Context, msg AlertMessage) error {
	body, err := json.Marshal(map[string]string{"text": msg.Text()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
	}
	return nil
}
