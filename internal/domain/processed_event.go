package domain

import "time"

// ProcessedEvent records a webhook delivery that has already been dispatched,
// keyed by signal plus the ledger's event handle. Used to short-circuit
// replayed deliveries before they reach the reconcilers.
type ProcessedEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Signal      string    `gorm:"size:64;not null;uniqueIndex:idx_processed_events_signal_handle" json:"-"`
	EventHandle string    `gorm:"size:255;not null;uniqueIndex:idx_processed_events_signal_handle" json:"-"`
	Fingerprint string    `gorm:"size:128;not null" json:"-"`
	ExpiresAt   time.Time `gorm:"index;not null" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
