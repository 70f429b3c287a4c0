// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the deposit record store.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Every state change is a single conditional UPDATE: the row is only written
// when its current status is a legal predecessor of the target (transitions)
// or when no provider reference is bound yet (attach). The database row is
// the only coordination point between concurrent requests and webhooks.
//
// Error semantics:
//   - ErrNotFound when the deposit does not exist.
//   - ErrAlreadyInState when a transition targets the current status.
//   - *InvalidTransitionError when the current status forbids the edge.
//   - ErrConflict when a provider reference is already bound.
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

// InsertDeposit stores a new deposit in status pending with no provider
// reference. ID is assigned when empty.
func InsertDeposit(ctx context.Context, db *gorm.DB, d *domain.Deposit) (*domain.Deposit, error) {
	if d == nil || !d.Amount.IsPositive() ||
		strings.TrimSpace(d.Username) == "" ||
		strings.TrimSpace(d.Email) == "" ||
		strings.TrimSpace(d.Phone) == "" ||
		strings.TrimSpace(d.GameName) == "" ||
		strings.TrimSpace(d.Currency) == "" {
		return nil, ErrValidation
	}
	now := time.Now().UTC()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Status = domain.StatusPending
	d.Provider = ""
	d.ProviderRef = nil
	d.RedirectURL = ""
	d.SettledAt = nil
	d.CreatedAt = now
	d.UpdatedAt = now
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// GetDeposit fetches a deposit by id or returns ErrNotFound.
func GetDeposit(ctx context.Context, db *gorm.DB, id string) (*domain.Deposit, error) {
	var d domain.Deposit
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// FindByProviderRef resolves the deposit bound to a provider reference.
func FindByProviderRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Deposit, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, ErrNotFound
	}
	var d domain.Deposit
	if err := db.WithContext(ctx).Where("provider_ref = ?", ref).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// AttachProviderRef binds a provider session to a deposit. The write only
// happens while provider_ref is NULL. Re-attaching the same reference is a
// no-op; any other value, or a reference already owned by another deposit,
// yields ErrConflict.
func AttachProviderRef(ctx context.Context, db *gorm.DB, id, provider, ref, redirectURL string) error {
	if strings.TrimSpace(ref) == "" {
		return ErrValidation
	}
	res := db.WithContext(ctx).
		Model(&domain.Deposit{}).
		Where("id = ? AND provider_ref IS NULL", id).
		Updates(map[string]any{
			"provider":     provider,
			"provider_ref": ref,
			"redirect_url": redirectURL,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	cur, err := GetDeposit(ctx, db, id)
	if err != nil {
		return err
	}
	if cur.ProviderRef != nil && *cur.ProviderRef == ref && cur.Provider == provider {
		return nil
	}
	return ErrConflict
}

// TransitionDeposit moves a deposit to status to with one conditional
// UPDATE whose WHERE clause lists the legal predecessors of to. When no row
// changes the current row is read back to classify the refusal.
//
// Terminal targets also stamp settled_at. The returned deposit is the row as
// read after the update.
func TransitionDeposit(ctx context.Context, db *gorm.DB, id string, to domain.DepositStatus) (*domain.Deposit, error) {
	if preds := domain.Predecessors(to); len(preds) > 0 {
		now := time.Now().UTC()
		fields := map[string]any{
			"status":     to,
			"updated_at": now,
		}
		if to.IsTerminal() {
			fields["settled_at"] = now
		}
		res := db.WithContext(ctx).
			Model(&domain.Deposit{}).
			Where("id = ? AND status IN ?", id, preds).
			Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return GetDeposit(ctx, db, id)
		}
	}

	cur, err := GetDeposit(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == to {
		return cur, ErrAlreadyInState
	}
	return cur, &InvalidTransitionError{From: cur.Status, To: to}
}

// CountDeposits returns the number of deposits, optionally filtered by status.
func CountDeposits(ctx context.Context, db *gorm.DB, status domain.DepositStatus) (int64, error) {
	var total int64
	err := scopeStatus(db.WithContext(ctx).Model(&domain.Deposit{}), status).
		Count(&total).Error
	return total, err
}

// ListDepositsPage returns deposits ordered by creation time descending.
// The caller is responsible for computing offset and limit.
func ListDepositsPage(ctx context.Context, db *gorm.DB, status domain.DepositStatus, offset, limit int) ([]domain.Deposit, error) {
	var out []domain.Deposit
	err := scopeStatus(db.WithContext(ctx), status).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func scopeStatus(q *gorm.DB, status domain.DepositStatus) *gorm.DB {
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}

// IsNotFound reports whether err means the record is missing.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
