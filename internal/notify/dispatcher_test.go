package notify

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/dorvan/medtide/internal/model"
)

// recordingNotifier counts schedule calls and keeps the last
// notification per id.
type recordingNotifier struct {
	mu        sync.Mutex
	enabled   bool
	scheduled []model.PendingNotification
	cancelled []int64
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{enabled: true}
}

func (r *recordingNotifier) Enabled() bool { return r.enabled }

func (r *recordingNotifier) Schedule(n model.PendingNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, n)
	return nil
}

func (r *recordingNotifier) Cancel(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, id)
	return nil
}

func (r *recordingNotifier) calls() []model.PendingNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PendingNotification(nil), r.scheduled...)
}

func TestHandleFrameSchedulesAlarm(t *testing.T) {
	rec := newRecordingNotifier()
	d := NewDispatcher(rec, slog.Default())

	err := d.HandleFrame([]byte(`{"alarms":[{"schedule_id":7,"medicine_name":"Aspirin"}]}`))
	if err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	calls := rec.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 schedule call, got %d", len(calls))
	}
	if calls[0].ID != 7 {
		t.Errorf("id = %d, want 7", calls[0].ID)
	}
	if calls[0].Title != "Aspirin" {
		t.Errorf("title = %q, want Aspirin", calls[0].Title)
	}
	if calls[0].Body != "Time to take your Aspirin" {
		t.Errorf("body = %q", calls[0].Body)
	}
}

func TestHandleFrameDeduplicatesByScheduleID(t *testing.T) {
	rec := newRecordingNotifier()
	d := NewDispatcher(rec, slog.Default())

	frame := []byte(`{"alarms":[{"schedule_id":42,"medicine_name":"Ibuprofen"}]}`)
	if err := d.HandleFrame(frame); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if err := d.HandleFrame(frame); err != nil {
		t.Fatalf("second frame: %v", err)
	}

	// The platform is called once per arrival, but only one notification
	// stays live: the second call replaces the first by id.
	if got := len(rec.calls()); got != 2 {
		t.Errorf("expected 2 schedule calls, got %d", got)
	}
	live := d.Live()
	if len(live) != 1 {
		t.Fatalf("expected 1 live notification, got %d", len(live))
	}
	if live[0].ID != 42 {
		t.Errorf("live id = %d, want 42", live[0].ID)
	}
}

func TestHandleFrameEmptyAndNullAlarms(t *testing.T) {
	for _, payload := range []string{
		`{"alarms":[]}`,
		`{"alarms":null}`,
		`{}`,
	} {
		rec := newRecordingNotifier()
		d := NewDispatcher(rec, slog.Default())

		if err := d.HandleFrame([]byte(payload)); err != nil {
			t.Errorf("%s: unexpected error: %v", payload, err)
		}
		if got := len(rec.calls()); got != 0 {
			t.Errorf("%s: expected 0 schedule calls, got %d", payload, got)
		}
	}
}

func TestHandleFrameSingleObjectVariant(t *testing.T) {
	rec := newRecordingNotifier()
	d := NewDispatcher(rec, slog.Default())

	err := d.HandleFrame([]byte(`{"alarms":{"schedule_id":9,"medicine_name":"Metformin"}}`))
	if err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	calls := rec.calls()
	if len(calls) != 1 || calls[0].ID != 9 {
		t.Fatalf("expected single call with id 9, got %v", calls)
	}
}

func TestHandleFrameMalformed(t *testing.T) {
	rec := newRecordingNotifier()
	d := NewDispatcher(rec, slog.Default())

	for _, payload := range []string{
		`not json at all`,
		`{"alarms":"what"}`,
		`{"alarms":[{"schedule_id":"nope"}]}`,
	} {
		if err := d.HandleFrame([]byte(payload)); err == nil {
			t.Errorf("%s: expected error", payload)
		}
	}
	if got := len(rec.calls()); got != 0 {
		t.Errorf("expected 0 schedule calls for malformed frames, got %d", got)
	}
}

func TestHandleFrameMissingMedicineName(t *testing.T) {
	rec := newRecordingNotifier()
	d := NewDispatcher(rec, slog.Default())

	if err := d.HandleFrame([]byte(`{"alarms":[{"schedule_id":3}]}`)); err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	calls := rec.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Title != "Medication Reminder" {
		t.Errorf("title = %q, want fallback", calls[0].Title)
	}
}

func TestDisabledNotifierDropsAlarms(t *testing.T) {
	rec := newRecordingNotifier()
	rec.enabled = false
	d := NewDispatcher(rec, slog.Default())

	if err := d.HandleFrame([]byte(`{"alarms":[{"schedule_id":1,"medicine_name":"X"}]}`)); err != nil {
		t.Fatalf("handle frame: %v", err)
	}
	if got := len(rec.calls()); got != 0 {
		t.Errorf("expected 0 calls with permission denied, got %d", got)
	}
	if got := len(d.Live()); got != 0 {
		t.Errorf("expected 0 live notifications, got %d", got)
	}
}

func TestClearCancelsLiveNotification(t *testing.T) {
	rec := newRecordingNotifier()
	d := NewDispatcher(rec, slog.Default())

	if err := d.HandleFrame([]byte(`{"alarms":[{"schedule_id":5,"medicine_name":"X"}]}`)); err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	d.Clear(5)
	if got := len(d.Live()); got != 0 {
		t.Errorf("expected 0 live after clear, got %d", got)
	}
	if len(rec.cancelled) != 1 || rec.cancelled[0] != 5 {
		t.Errorf("cancelled = %v, want [5]", rec.cancelled)
	}

	// Clearing an unknown id is a no-op.
	d.Clear(999)
	if len(rec.cancelled) != 1 {
		t.Errorf("expected no extra cancel call, got %v", rec.cancelled)
	}
}
