// Package services – AdminService
//
// Read-only queries behind the admin API: deposit listings, per-status
// totals and the webhook audit trail.
package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-deposit-backend/internal/domain"
	"github.com/tbourn/go-deposit-backend/internal/repo"
	"github.com/tbourn/go-deposit-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AdminService serves admin listings.
type AdminService struct {
	DB *gorm.DB
}

// NewAdminService constructs an AdminService.
func NewAdminService(db *gorm.DB) *AdminService { return &AdminService{DB: db} }

// ListDeposits returns one page of deposits, newest first, optionally
// filtered by status, plus the total count.
func (s *AdminService) ListDeposits(ctx context.Context, status domain.DepositStatus, page, pageSize int) ([]domain.Deposit, int64, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "ListDeposits",
		trace.WithAttributes(
			attribute.String("status", string(status)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if status != "" && !status.Valid() {
		v := &ValidationError{}
		v.add("status", "status is not a deposit status")
		return nil, 0, v
	}
	_, size, offset := utils.Page(page, pageSize)

	total, err := repo.CountDeposits(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Deposit{}, 0, nil
	}
	items, err := repo.ListDepositsPage(ctx, s.DB, status, offset, size)
	return items, total, err
}

// DepositsETag returns a weak ETag for the deposit listing with the given
// status filter. It changes whenever a matching row is added or transitioned.
func (s *AdminService) DepositsETag(ctx context.Context, status domain.DepositStatus) (string, error) {
	count, maxTS, err := repo.DepositsStats(ctx, s.DB, status)
	if err != nil {
		return "", err
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UTC().UnixNano()
	}
	filter := string(status)
	if filter == "" {
		filter = "all"
	}
	return fmt.Sprintf(`W/"deposits:%s:%d:%d"`, filter, count, ts), nil
}

// Stats returns count and amount per status.
func (s *AdminService) Stats(ctx context.Context) ([]repo.StatusTotal, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Stats")
	defer span.End()
	return repo.DepositTotalsByStatus(ctx, s.DB)
}

// ListWebhookLogs returns one page of audit rows, newest first.
func (s *AdminService) ListWebhookLogs(ctx context.Context, f repo.WebhookLogFilter, page, pageSize int) ([]domain.WebhookLog, int64, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "ListWebhookLogs",
		trace.WithAttributes(
			attribute.String("provider", f.Provider),
			attribute.Int("page", page),
		),
	)
	defer span.End()

	_, size, offset := utils.Page(page, pageSize)
	total, err := repo.CountWebhookLogs(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.WebhookLog{}, 0, nil
	}
	items, err := repo.ListWebhookLogsPage(ctx, s.DB, f, offset, size)
	return items, total, err
}
