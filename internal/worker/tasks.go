package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/elgen19/dearly-server/internal/mailer"
	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskEmailSend          = "email:send"
	TaskScheduledEmailTick = "email:scheduled_tick"
)

// emailSendPayload carries a direct send through the queue
type emailSendPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Package-level Asynq client (singleton)
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any EnqueueX functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// EnqueueSendEmail queues a direct (non-scheduled) send. The worker
// retries up to 3 times with asynq's default backoff before the task is
// parked in the dead letter queue.
func EnqueueSendEmail(msg mailer.Message) error {
	if client == nil {
		return fmt.Errorf("asynq client not initialized")
	}

	payload, err := json.Marshal(emailSendPayload{
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(
		TaskEmailSend,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(24*time.Hour),
	)

	_, err = client.Enqueue(task)
	return err
}
