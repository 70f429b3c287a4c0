// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the admin read side and for conditional responses (ETag generation) in
// the HTTP layer.
package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-deposit-backend/internal/domain"
)

// DepositsStats returns the number of deposits with the given status (all
// when empty) and the maximum UpdatedAt among them.
//
// When no rows match, the returned count is 0 and maxUpdatedAt is nil.
func DepositsStats(ctx context.Context, db *gorm.DB, status domain.DepositStatus) (count int64, maxUpdatedAt *time.Time, err error) {
	q := scopeStatus(db.WithContext(ctx).Model(&domain.Deposit{}), status)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q = scopeStatus(db.WithContext(ctx).Model(&domain.Deposit{}), status)
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// StatusTotal is one row of the per-status breakdown.
type StatusTotal struct {
	Status domain.DepositStatus `json:"status"`
	Count  int64                `json:"count"`
	Amount decimal.Decimal      `json:"amount"`
}

// DepositTotalsByStatus returns count and summed amount per status, in the
// lifecycle order of the statuses. Amounts of different currencies are summed
// together; callers needing per-currency totals must filter first.
func DepositTotalsByStatus(ctx context.Context, db *gorm.DB) ([]StatusTotal, error) {
	var rows []struct {
		Status domain.DepositStatus
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&domain.Deposit{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[domain.DepositStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}

	order := []domain.DepositStatus{
		domain.StatusPending, domain.StatusPendingPayment,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
	}
	out := make([]StatusTotal, 0, len(order))
	for _, s := range order {
		st := StatusTotal{Status: s, Count: counts[s], Amount: decimal.Zero}
		if st.Count > 0 {
			// Summed in Go: SQLite returns SUM() of numeric as float.
			var amounts []decimal.Decimal
			if err := db.WithContext(ctx).
				Model(&domain.Deposit{}).
				Where("status = ?", s).
				Pluck("amount", &amounts).Error; err != nil {
				return nil, err
			}
			for _, a := range amounts {
				st.Amount = st.Amount.Add(a)
			}
		}
		out = append(out, st)
	}
	return out, nil
}
