package notify

import (
	"context"
	"fmt"

	"TrendEngine/pkg/logger"
	"TrendEngine/pkg/queue"
)

// TypeAlert is the queue message type for trading alerts.
const TypeAlert = "alert"

// Alert is a human-facing notification payload.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// QueueNotifier pushes alerts onto the Redis queue for out-of-process
// delivery. Enqueue failures are logged and swallowed: a dead notification
// channel must never fail a trade path.
type QueueNotifier struct {
	q   queue.QueueService
	log *logger.Logger
}

// NewQueueNotifier creates a notifier backed by the alert queue.
func NewQueueNotifier(q queue.QueueService, log *logger.Logger) *QueueNotifier {
	return &QueueNotifier{q: q, log: log}
}

// Notify enqueues one alert.
func (n *QueueNotifier) Notify(ctx context.Context, title, message string) error {
	if n.q == nil {
		return nil
	}
	if err := n.q.PublishMessage(ctx, TypeAlert, Alert{Title: title, Message: message}); err != nil {
		n.log.Warn("alert enqueue failed",
			logger.String("title", title), logger.Error(err))
		return fmt.Errorf("enqueue alert: %w", err)
	}
	return nil
}

// LogNotifier writes alerts to the application log. Used when Redis is
// disabled and in backtests.
type LogNotifier struct {
	Log *logger.Logger
}

// Notify logs the alert.
func (n *LogNotifier) Notify(ctx context.Context, title, message string) error {
	n.Log.Warn("ALERT: "+title, logger.String("detail", message))
	return nil
}
