package bubblesync

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func pushEnvelope(t *testing.T, nudge DispatchNudge) []byte {
	t.Helper()
	data, err := json.Marshal(nudge)
	if err != nil {
		t.Fatalf("marshal nudge: %v", err)
	}
	// Pub/Sub push delivers message data base64-encoded; encoding/json
	// handles that for []byte fields on both sides.
	body, err := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{
			"data":      base64.StdEncoding.EncodeToString(data),
			"messageId": "m-1",
		},
		"subscription": "projects/p/subscriptions/s",
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

func TestPubSubPushHandlerNudgesDispatcher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := newTestDispatcher(newMemStore(), &fakeInvoker{})

	r := gin.New()
	r.POST("/pubsub/sync-nudge", PubSubPushHandler(d, nil))

	body := pushEnvelope(t, DispatchNudge{CorrelationId: "corr-1"})
	req := httptest.NewRequest(http.MethodPost, "/pubsub/sync-nudge", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(d.nudge) != 1 {
		t.Fatal("dispatcher was not nudged")
	}
}

func TestPubSubPushHandlerSwallowsGarbage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := newTestDispatcher(newMemStore(), &fakeInvoker{})

	r := gin.New()
	r.POST("/pubsub/sync-nudge", PubSubPushHandler(d, nil))

	// A nack would make Pub/Sub redeliver a message that can never parse.
	req := httptest.NewRequest(http.MethodPost, "/pubsub/sync-nudge", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(d.nudge) != 0 {
		t.Fatal("dispatcher nudged by garbage")
	}
}
