package bubblesync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/splitleasesharath/splitlease-sub012/config"
)

func nudgeTopicName() string {
	topicName := strings.TrimSpace(os.Getenv("SYNC_NUDGE_TOPIC"))
	if topicName == "" {
		topicName = "legacy-sync-nudge"
	}
	return topicName
}

// PublishDispatchNudge tells running sync instances to dispatch now instead of
// waiting for the next poll. Callers invoke it after commit; a lost nudge only
// delays delivery until the poll interval, so failures are the caller's to log.
func PublishDispatchNudge(ctx context.Context, correlationId string) error {
	topicName := nudgeTopicName()
	if envBoolDefault("SYNC_NUDGE_CREATE_TOPIC", false) {
		client, err := config.GetClient(ctx)
		if err != nil {
			return err
		}
		if _, err := config.CreateTopicIfNotExists(client, topicName); err != nil {
			return err
		}
	}

	nudge := DispatchNudge{
		CorrelationId: correlationId,
		EnqueuedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	_, err := config.PublishJSON(ctx, topicName, nudge)
	return err
}

// PubSubPushHandler accepts the push subscription for dispatch nudges and pokes
// the dispatcher. Always 204: a malformed message would be redelivered forever
// if we nacked it, and the poll loop covers anything dropped here.
func PubSubPushHandler(d *Dispatcher, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SYNC_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var nudge DispatchNudge
		if err := json.Unmarshal(envelope.Message.Data, &nudge); err != nil {
			c.Status(204)
			return
		}

		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":          "SyncNudge",
				"correlation_id": nudge.CorrelationId,
				"message_id":     envelope.Message.ID,
			}).Info("received dispatch nudge")
		}

		d.Nudge()
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
