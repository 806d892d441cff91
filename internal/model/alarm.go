package model

import "time"

// AlarmEvent is one dose-due alarm pushed by the server. ScheduleID is
// the deduplication key for the local notification it maps to.
type AlarmEvent struct {
	ScheduleID   int64  `json:"schedule_id"`
	MedicineName string `json:"medicine_name"`
}

// PendingNotification is a notification handed to the platform
// capability. Scheduling again with the same ID replaces the previous
// one rather than duplicating it.
type PendingNotification struct {
	ID      int64     `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	FiresAt time.Time `json:"fires_at"`
}
