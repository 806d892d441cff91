package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dorvan/medtide/internal/config"
	"github.com/dorvan/medtide/internal/model"
)

// ErrExpired is returned when the push subscription is no longer valid
// (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// payload is the JSON body sent to the push service. Tag carries the
// schedule id so the push service collapses a redelivered alarm into
// the existing notification instead of showing a second banner.
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// WebpushNotifier delivers alarm notifications to a configured web
// push subscription.
type WebpushNotifier struct {
	cfg config.WebpushConfig
}

func NewWebpushNotifier(cfg config.WebpushConfig) *WebpushNotifier {
	return &WebpushNotifier{cfg: cfg}
}

// Enabled reports whether a complete subscription is configured.
func (w *WebpushNotifier) Enabled() bool {
	return w.cfg.Endpoint != "" && w.cfg.P256dhKey != "" && w.cfg.AuthKey != "" &&
		w.cfg.VAPIDPublicKey != "" && w.cfg.VAPIDPrivateKey != ""
}

// Schedule sends the notification. Same-tag sends replace each other
// at the push service, which gives the at-most-one-per-id guarantee.
func (w *WebpushNotifier) Schedule(n model.PendingNotification) error {
	data, err := json.Marshal(payload{
		Title: n.Title,
		Body:  n.Body,
		Tag:   strconv.FormatInt(n.ID, 10),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: w.cfg.Endpoint,
		Keys: webpush.Keys{
			P256dh: w.cfg.P256dhKey,
			Auth:   w.cfg.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
		Subscriber:      "mailto:noreply@medtide.app",
		TTL:             3600,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// Cancel is a no-op at the push service level; delivered notifications
// expire with their TTL.
func (w *WebpushNotifier) Cancel(id int64) error {
	return nil
}
