package notify

import (
	"log/slog"

	"github.com/dorvan/medtide/internal/model"
)

// LogNotifier writes notifications to the log. It stands in for the
// platform capability when no push subscription is configured, so a
// headless deployment still surfaces every alarm.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Enabled() bool { return true }

func (l *LogNotifier) Schedule(n model.PendingNotification) error {
	l.logger.Info("ALARM", "schedule_id", n.ID, "title", n.Title, "body", n.Body, "fires_at", n.FiresAt)
	return nil
}

func (l *LogNotifier) Cancel(id int64) error {
	l.logger.Info("alarm cleared", "schedule_id", id)
	return nil
}
