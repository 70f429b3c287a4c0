package repo

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/tbourn/go-deposit-backend/internal/domain"
)

// AppendWebhookLog inserts one audit row. ID and ReceivedAt are filled when empty.
// Rows are never updated.
func AppendWebhookLog(ctx context.Context, db *gorm.DB, l *domain.WebhookLog) error {
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = time.Now().UTC()
	}
	if l.ID == "" {
		l.ID = ulid.MustNew(ulid.Timestamp(l.ReceivedAt), rand.Reader).String()
	}
	return db.WithContext(ctx).Create(l).Error
}

// WebhookLogFilter narrows admin listings. Empty fields match everything.
type WebhookLogFilter struct {
	Provider    string
	ProviderRef string
	Outcome     domain.WebhookOutcome
}

func (f WebhookLogFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Provider != "" {
		q = q.Where("provider = ?", f.Provider)
	}
	if f.ProviderRef != "" {
		q = q.Where("provider_ref = ?", f.ProviderRef)
	}
	if f.Outcome != "" {
		q = q.Where("outcome = ?", f.Outcome)
	}
	return q
}

// CountWebhookLogs returns the number of audit rows matching f.
func CountWebhookLogs(ctx context.Context, db *gorm.DB, f WebhookLogFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.WebhookLog{})).Count(&total).Error
	return total, err
}

// ListWebhookLogsPage returns audit rows newest first. ULIDs sort by time,
// so id breaks ties between rows received in the same instant.
func ListWebhookLogsPage(ctx context.Context, db *gorm.DB, f WebhookLogFilter, offset, limit int) ([]domain.WebhookLog, error) {
	var out []domain.WebhookLog
	err := f.apply(db.WithContext(ctx)).
		Order("received_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
