package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

// Worker turns consumed notifications into emails.
type Worker struct {
	Mailer Mailer
	Logger *logger.Logger
}

func NewWorker(mailer Mailer, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{Mailer: mailer, Logger: log}
}

// Handle is a kafka.Handler.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	var n models.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	if n.AttendeeEmail == "" {
		w.Logger.Warn("NOTIFY", fmt.Sprintf("Dropping %s for %s: no recipient", n.Type, n.Key()))
		return nil
	}

	subject, body := Render(n)
	if err := w.Mailer.Send(ctx, n.AttendeeEmail, subject, body); err != nil {
		return fmt.Errorf("send %s to %s: %w", n.Type, n.AttendeeEmail, err)
	}
	w.Logger.Info("NOTIFY", fmt.Sprintf("Sent %s for %s", n.Type, n.Key()))
	return nil
}
