package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hector-minka/collections-bridge/internal/domain"
)

// DBEventDedupeStore keeps processed events in the relational store. The
// unique (signal, event_handle) index arbitrates concurrent completions.
type DBEventDedupeStore struct {
	db *gorm.DB
}

func NewDBEventDedupeStore(db *gorm.DB) *DBEventDedupeStore {
	return &DBEventDedupeStore{db: db}
}

// Check reads the recorded state without writing. An event is only present
// once its reconciliation completed, so absence means dispatch.
func (s *DBEventDedupeStore) Check(ctx context.Context, signal, eventHandle, fingerprint string) (EventDedupeState, error) {
	var existing domain.ProcessedEvent
	err := s.db.WithContext(ctx).
		Where("signal = ? AND event_handle = ?", signal, eventHandle).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return EventDedupeStateNew, nil
		}
		return "", err
	}
	if time.Now().UTC().After(existing.ExpiresAt) {
		return EventDedupeStateNew, nil
	}
	if existing.Fingerprint == fingerprint {
		return EventDedupeStateSeen, nil
	}
	return EventDedupeStateChanged, nil
}

// MarkProcessed records a completed reconciliation, refreshing the
// fingerprint and expiry when the event was recorded before.
func (s *DBEventDedupeStore) MarkProcessed(ctx context.Context, signal, eventHandle, fingerprint string, ttl time.Duration) error {
	record := domain.ProcessedEvent{
		Signal:      signal,
		EventHandle: eventHandle,
		Fingerprint: fingerprint,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signal"}, {Name: "event_handle"}},
		DoUpdates: clause.AssignmentColumns([]string{"fingerprint", "expires_at"}),
	}).Create(&record).Error
}

// CleanupExpired deletes up to batchSize expired rows and reports how many
// were removed.
func (s *DBEventDedupeStore) CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&domain.ProcessedEvent{}).
		Where("expires_at < ?", now).
		Order("id ASC").
		Limit(batchSize).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Delete(&domain.ProcessedEvent{}, ids)
	return res.RowsAffected, res.Error
}
