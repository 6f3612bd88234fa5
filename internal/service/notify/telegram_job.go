package notify

import (
	"context"
	"fmt"

	xhttp "TrendEngine/pkg/http"
	"TrendEngine/pkg/logger"
	"TrendEngine/pkg/queue"
)

// TelegramJob consumes queued alerts and delivers them to a Telegram chat.
type TelegramJob struct {
	botToken string
	chatID   string
	client   *xhttp.Client
	log      *logger.Logger
}

// NewTelegramJob creates the alert delivery job.
func NewTelegramJob(botToken, chatID string, client *xhttp.Client, log *logger.Logger) *TelegramJob {
	return &TelegramJob{botToken: botToken, chatID: chatID, client: client, log: log}
}

// Name implements queue.Job.
func (j *TelegramJob) Name() string { return "telegram-alert" }

// Type implements queue.Job.
func (j *TelegramJob) Type() string { return TypeAlert }

// Handle delivers one alert.
func (j *TelegramJob) Handle(ctx context.Context, payload interface{}) error {
	alert, err := queue.ParsePayload[Alert](payload)
	if err != nil {
		return fmt.Errorf("parse alert payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", j.botToken)
	err = j.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    url,
		Body: map[string]any{
			"chat_id": j.chatID,
			"text":    fmt.Sprintf("%s\n%s", alert.Title, alert.Message),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}

	j.log.Info("alert delivered", logger.String("title", alert.Title))
	return nil
}
