// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for POST endpoints.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-deposit-backend/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("scope = ? AND key = ? AND expires_at > ?", scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
//
// An expired row with the same (scope, key) is removed first so keys can be
// reused once their TTL has elapsed.
func CreateIdempotency(ctx context.Context, db *gorm.DB, scope, key, depositID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	if err := db.WithContext(ctx).
		Where("scope = ? AND key = ? AND expires_at <= ?", scope, key, now).
		Delete(&domain.Idempotency{}).Error; err != nil {
		return nil, err
	}
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		Scope:     scope,
		Key:       key,
		DepositID: depositID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// CompleteIdempotency records the final response status of a reserved key.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, scope, key string, status int) error {
	res := db.WithContext(ctx).Model(&domain.Idempotency{}).
		Where("scope = ? AND key = ?", scope, key).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseIdempotency drops the key held for depositID so a retry with the
// same key starts over. A key rebound to another deposit is left alone.
func ReleaseIdempotency(ctx context.Context, db *gorm.DB, scope, key, depositID string) error {
	return db.WithContext(ctx).
		Where("scope = ? AND key = ? AND deposit_id = ?", scope, key, depositID).
		Delete(&domain.Idempotency{}).Error
}
