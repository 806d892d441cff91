package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dorvan/medtide/internal/model"
)

// Notifier is the platform notification capability. Schedule with an
// ID that is already live replaces the existing notification; it never
// produces a second banner.
type Notifier interface {
	// Enabled reports whether the platform granted notification
	// permission. When false, dispatch degrades to a no-op.
	Enabled() bool
	Schedule(n model.PendingNotification) error
	Cancel(id int64) error
}

// frame is the body of one inbound channel frame. Alarms is kept raw
// because observed traffic carries either a sequence of events or a
// single event object; the shape is resolved in normalizeAlarms.
type frame struct {
	Alarms json.RawMessage `json:"alarms"`
}

// Dispatcher turns server-pushed alarm events into scheduled local
// notifications, deduplicated by schedule id. The server is the source
// of timing truth: a pushed alarm fires immediately on arrival, the
// client never recomputes the delay.
type Dispatcher struct {
	mu       sync.Mutex
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	// live tracks the notification currently scheduled per schedule id,
	// so a redelivered alarm after a reconnect replaces rather than
	// duplicates.
	live map[int64]model.PendingNotification
}

func NewDispatcher(notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		live:     make(map[int64]model.PendingNotification),
	}
}

// HandleFrame parses one inbound frame and schedules a notification
// per alarm event. A frame without alarms is a no-op. The returned
// error marks the frame malformed; the caller logs and drops it.
func (d *Dispatcher) HandleFrame(payload []byte) error {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return fmt.Errorf("parse frame: %w", err)
	}

	alarms, err := normalizeAlarms(f.Alarms)
	if err != nil {
		return fmt.Errorf("parse alarms: %w", err)
	}
	if len(alarms) == 0 {
		d.logger.Debug("frame without alarm data")
		return nil
	}

	for _, alarm := range alarms {
		d.schedule(alarm)
	}
	return nil
}

func (d *Dispatcher) schedule(alarm model.AlarmEvent) {
	title := alarm.MedicineName
	if title == "" {
		title = "Medication Reminder"
	}

	n := model.PendingNotification{
		ID:      alarm.ScheduleID,
		Title:   title,
		Body:    fmt.Sprintf("Time to take your %s", title),
		FiresAt: d.now(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.notifier.Enabled() {
		d.logger.Info("notifications disabled, dropping alarm", "schedule_id", alarm.ScheduleID)
		return
	}

	if err := d.notifier.Schedule(n); err != nil {
		d.logger.Warn("schedule notification", "schedule_id", n.ID, "error", err)
		return
	}
	d.live[n.ID] = n
	d.logger.Info("notification scheduled",
		"schedule_id", n.ID, "medicine", alarm.MedicineName)
}

// Live returns the notifications currently scheduled, at most one per
// schedule id.
func (d *Dispatcher) Live() []model.PendingNotification {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.PendingNotification, 0, len(d.live))
	for _, n := range d.live {
		out = append(out, n)
	}
	return out
}

// Clear cancels a live notification, e.g. once the dose is confirmed.
func (d *Dispatcher) Clear(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.live[id]; !ok {
		return
	}
	if err := d.notifier.Cancel(id); err != nil {
		d.logger.Warn("cancel notification", "schedule_id", id, "error", err)
	}
	delete(d.live, id)
}

// normalizeAlarms accepts the three observed shapes of the alarms
// field: absent/null, a sequence of events, or a single event object.
func normalizeAlarms(raw json.RawMessage) ([]model.AlarmEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var alarms []model.AlarmEvent
		if err := json.Unmarshal(raw, &alarms); err != nil {
			return nil, err
		}
		return alarms, nil
	case '{':
		var alarm model.AlarmEvent
		if err := json.Unmarshal(raw, &alarm); err != nil {
			return nil, err
		}
		return []model.AlarmEvent{alarm}, nil
	default:
		return nil, fmt.Errorf("alarms is neither array nor object: %s", trimmed)
	}
}
