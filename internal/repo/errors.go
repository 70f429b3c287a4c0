package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/tbourn/go-deposit-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

var (
	// ErrValidation rejects a deposit that cannot be stored as given.
	ErrValidation = errors.New("repo: invalid deposit")

	// ErrConflict means a provider reference is already bound, either to this
	// deposit with a different value or to another deposit.
	ErrConflict = errors.New("repo: provider reference conflict")

	// ErrAlreadyInState reports a transition whose target equals the current status.
	ErrAlreadyInState = errors.New("repo: deposit already in target state")

	// ErrInvalidTransition is matched by every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("repo: invalid transition")

	// ErrDuplicate indicates that an idempotency record already exists for the
	// given (scope, key) pair.
	ErrDuplicate = errors.New("duplicate")
)

// InvalidTransitionError carries the status observed when a transition was refused.
type InvalidTransitionError struct {
	From domain.DepositStatus
	To   domain.DepositStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("repo: invalid transition %s -> %s", e.From, e.To)
}

// Is lets errors.Is(err, ErrInvalidTransition) match.
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// isDuplicate recognizes unique violations across the GORM translator,
// PostgreSQL (SQLSTATE 23505) and the plain-text errors of glebarez/sqlite.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
