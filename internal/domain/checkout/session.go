package checkout

import (
	"context"
	"errors"
	"time"
)

var ErrNoSelection = errors.New("checkout: no active selection")

// Session is the per-user checkout state kept between the cart and a payment confirmation.
// It lives in an expiring store, so a stale session simply disappears.
type Session struct {
	UserID     int64     `json:"user_id"`
	ProductIDs []int64   `json:"product_ids"`
	CreatedAt  time.Time `json:"created_at"`
	// Provider handles bound to this selection. A confirmation is accepted only for the handle
	// the session issued.
	CaptureIntentID string `json:"capture_intent_id,omitempty"`
	HostedRequestID string `json:"hosted_request_id,omitempty"`
	QRReference     string `json:"qr_reference,omitempty"`
}

// Store keeps one session per user with a time-to-live.
type Store interface {
	// Get returns ErrNoSelection when nothing is stored or the entry expired.
	Get(ctx context.Context, userID int64) (*Session, error)
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, userID int64) error
}
