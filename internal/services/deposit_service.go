// Package services – DepositService
//
// DepositService owns the intake side of the deposit lifecycle: it validates
// player input, records the deposit locally, asks the default payment provider
// for a hosted checkout and binds the returned session to the deposit.
//
// The local record always exists before the provider is contacted, so a
// provider outage leaves a pending deposit with no provider reference rather
// than a session nobody knows about.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-deposit-backend/internal/domain"
	"github.com/tbourn/go-deposit-backend/internal/payments"
	"github.com/tbourn/go-deposit-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// idempotencyScope namespaces Idempotency-Key values of deposit creation.
const idempotencyScope = "deposits"

// staleReservation is how long a reserved key may stay unfinished before
// another request with the same key may take it over.
const staleReservation = 5 * time.Minute

// PaymentMethods lists the accepted payment_method values.
var PaymentMethods = []string{"bitcoin", "lightning", "card"}

// CreateDepositInput is the player-supplied deposit request.
type CreateDepositInput struct {
	Username      string          `validate:"required,max=128"`
	Email         string          `validate:"required,email,max=255"`
	Phone         string          `validate:"required,min=10,max=32"`
	GameName      string          `validate:"required,max=128"`
	Amount        decimal.Decimal `validate:"-"`
	Currency      string          `validate:"required,len=3,alpha"`
	PaymentMethod string          `validate:"required,oneof=bitcoin lightning card"`

	// IdempotencyKey is optional; a replay within the TTL returns the
	// deposit created by the first request.
	IdempotencyKey string `validate:"-"`
}

// CreateDepositResult is returned to the UI, which redirects the player to
// RedirectURL.
type CreateDepositResult struct {
	DepositID   string
	RedirectURL string
	Status      domain.DepositStatus
	Provider    string
	Replayed    bool
}

// DepositService coordinates deposit intake with the payment provider.
type DepositService struct {
	DB        *gorm.DB
	Providers *payments.Registry

	// SessionAttempts caps CreateSession calls per deposit (>= 1).
	SessionAttempts int
	// RetryInitial is the first backoff interval between session attempts.
	RetryInitial time.Duration
	// IdempotencyTTL bounds how long an Idempotency-Key is honored.
	IdempotencyTTL time.Duration
	// MaxAmount optionally caps a single deposit; zero disables the cap.
	MaxAmount decimal.Decimal

	validate *validator.Validate
}

// NewDepositService constructs a DepositService with defaults for retries
// and idempotency.
func NewDepositService(db *gorm.DB, providers *payments.Registry) *DepositService {
	return &DepositService{
		DB:              db,
		Providers:       providers,
		SessionAttempts: 3,
		RetryInitial:    250 * time.Millisecond,
		IdempotencyTTL:  24 * time.Hour,
		validate:        validator.New(),
	}
}

// Create validates in, stores a pending deposit, opens a provider session
// and binds it to the deposit.
//
// Errors:
//   - *ValidationError for rejected input (nothing is stored).
//   - *ProviderError when no session could be opened; the deposit remains
//     pending with no provider reference.
//   - ErrConflict if another session was bound to the deposit concurrently.
//   - ErrIdempotencyInProgress while another request holds the same key.
func (s *DepositService) Create(ctx context.Context, in CreateDepositInput) (*CreateDepositResult, error) {
	tr := otel.Tracer("services/DepositService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("deposit.currency", in.Currency),
			attribute.String("deposit.payment_method", in.PaymentMethod),
		),
	)
	defer span.End()

	in = normalizeInput(in)
	if err := s.check(in); err != nil {
		span.SetStatus(codes.Error, "validation")
		return nil, err
	}

	if in.IdempotencyKey != "" {
		if res, ok := s.replay(ctx, in.IdempotencyKey); ok {
			span.SetAttributes(attribute.Bool("deposit.replayed", true))
			return res, nil
		}
	}

	provider := s.Providers.Default()
	if provider == nil {
		return nil, ErrUnknownProvider
	}

	id := uuid.NewString()
	if in.IdempotencyKey != "" {
		// Hold the key before anything is written so concurrent requests
		// with the same key cannot each open a session.
		res, err := s.reserve(ctx, in.IdempotencyKey, id)
		if err != nil || res != nil {
			return res, err
		}
	}

	d, err := repo.InsertDeposit(ctx, s.DB, &domain.Deposit{
		ID:            id,
		Username:      in.Username,
		Email:         in.Email,
		Phone:         in.Phone,
		GameName:      in.GameName,
		Amount:        in.Amount,
		Currency:      in.Currency,
		PaymentMethod: in.PaymentMethod,
		Metadata: datatypes.JSONMap{
			"deposit_id":     id,
			"username":       in.Username,
			"game_name":      in.GameName,
			"payment_method": in.PaymentMethod,
		},
	})
	if err != nil {
		span.RecordError(err)
		s.release(ctx, in.IdempotencyKey, id)
		return nil, err
	}
	span.SetAttributes(attribute.String("deposit.id", d.ID), attribute.String("provider", provider.Name()))
	lg := loggerFrom(ctx).With().Str("deposit_id", d.ID).Str("provider", provider.Name()).Logger()

	sess, err := s.openSession(ctx, provider, d, &lg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider")
		lg.Warn().Err(err).Msg("deposit left pending: no provider session")
		s.release(ctx, in.IdempotencyKey, id)
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.AttachProviderRef(ctx, tx, d.ID, provider.Name(), sess.ProviderRef, sess.RedirectURL); err != nil {
			return err
		}
		_, err := repo.TransitionDeposit(ctx, tx, d.ID, domain.StatusPendingPayment)
		return err
	})
	if err != nil {
		span.RecordError(err)
		lg.Error().Err(err).Str("provider_ref", sess.ProviderRef).Msg("bind provider session")
		s.release(ctx, in.IdempotencyKey, id)
		return nil, err
	}

	if in.IdempotencyKey != "" {
		if err := repo.CompleteIdempotency(ctx, s.DB, idempotencyScope, in.IdempotencyKey, http.StatusCreated); err != nil {
			lg.Warn().Err(err).Msg("complete idempotency key")
		}
	}

	lg.Info().Str("provider_ref", sess.ProviderRef).Msg("deposit awaiting payment")
	return &CreateDepositResult{
		DepositID:   d.ID,
		RedirectURL: sess.RedirectURL,
		Status:      domain.StatusPendingPayment,
		Provider:    provider.Name(),
	}, nil
}

// openSession calls CreateSession with exponential backoff, retrying only
// retryable provider errors. Retries reuse the deposit id, so providers that
// honor idempotency keys dedupe them.
func (s *DepositService) openSession(ctx context.Context, p payments.Provider, d *domain.Deposit, lg *zerolog.Logger) (*payments.Session, error) {
	req := payments.SessionRequest{
		DepositID:     d.ID,
		Amount:        d.Amount,
		Currency:      d.Currency,
		CustomerEmail: d.Email,
		Description:   fmt.Sprintf("Deposit for %s", d.GameName),
		PaymentMethod: d.PaymentMethod,
		Metadata: map[string]string{
			"username":       d.Username,
			"game_name":      d.GameName,
			"payment_method": d.PaymentMethod,
		},
	}

	attempts := s.SessionAttempts
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	if s.RetryInitial > 0 {
		bo.InitialInterval = s.RetryInitial
	}

	sess, err := backoff.Retry(ctx, func() (*payments.Session, error) {
		sess, err := p.CreateSession(ctx, req)
		if err != nil && !payments.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return sess, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			lg.Warn().Err(err).Dur("retry_in", next).Msg("provider session attempt failed")
		}),
	)
	if err == nil {
		return sess, nil
	}

	var pe *payments.ProviderError
	if errors.As(err, &pe) {
		return nil, pe
	}
	// Context cancellation while waiting between attempts.
	return nil, &payments.ProviderError{Provider: p.Name(), Retryable: true, Message: err.Error(), Err: err}
}

// replay returns the deposit a previous request with the same key created,
// provided it got as far as a provider session.
func (s *DepositService) replay(ctx context.Context, key string) (*CreateDepositResult, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, idempotencyScope, key, time.Now().UTC())
	if err != nil {
		return nil, false
	}
	d, err := repo.GetDeposit(ctx, s.DB, rec.DepositID)
	if err != nil || !d.HasProviderRef() {
		return nil, false
	}
	return &CreateDepositResult{
		DepositID:   d.ID,
		RedirectURL: d.RedirectURL,
		Status:      d.Status,
		Provider:    d.Provider,
		Replayed:    true,
	}, true
}

// reserve claims key for depositID. A nil result with a nil error means the
// key is now held by this request; a key someone else holds yields their
// replay or ErrIdempotencyInProgress.
func (s *DepositService) reserve(ctx context.Context, key, depositID string) (*CreateDepositResult, error) {
	for attempt := 0; ; attempt++ {
		_, err := repo.CreateIdempotency(ctx, s.DB, idempotencyScope, key, depositID, http.StatusAccepted, s.IdempotencyTTL)
		switch {
		case err == nil:
			return nil, nil
		case !errors.Is(err, repo.ErrDuplicate):
			return nil, err
		}
		if res, ok := s.replay(ctx, key); ok {
			return res, nil
		}
		// A reservation whose request died is taken over once it is stale.
		rec, err := repo.GetIdempotency(ctx, s.DB, idempotencyScope, key, time.Now().UTC())
		if attempt > 0 || err != nil || rec.Status != http.StatusAccepted || time.Since(rec.CreatedAt) < staleReservation {
			return nil, ErrIdempotencyInProgress
		}
		if err := repo.ReleaseIdempotency(ctx, s.DB, idempotencyScope, key, rec.DepositID); err != nil {
			return nil, err
		}
	}
}

// release frees a reserved key after a failed attempt.
func (s *DepositService) release(ctx context.Context, key, depositID string) {
	if key == "" {
		return
	}
	if err := repo.ReleaseIdempotency(context.WithoutCancel(ctx), s.DB, idempotencyScope, key, depositID); err != nil {
		loggerFrom(ctx).Warn().Err(err).Str("deposit_id", depositID).Msg("release idempotency key")
	}
}

// Get returns a deposit by id for the post-checkout status page.
func (s *DepositService) Get(ctx context.Context, id string) (*domain.Deposit, error) {
	tr := otel.Tracer("services/DepositService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("deposit.id", id)))
	defer span.End()

	d, err := repo.GetDeposit(ctx, s.DB, strings.TrimSpace(id))
	if repo.IsNotFound(err) {
		return nil, ErrDepositNotFound
	}
	return d, err
}

// check runs struct validation plus the rules tags cannot express.
func (s *DepositService) check(in CreateDepositInput) error {
	v := s.validate
	if v == nil {
		v = validator.New()
	}
	ve := &ValidationError{}
	if err := v.Struct(in); err != nil {
		var fes validator.ValidationErrors
		if !errors.As(err, &fes) {
			return err
		}
		for _, fe := range fes {
			ve.add(fieldName(fe.Field()), fieldMessage(fe))
		}
	}
	if !in.Amount.IsPositive() {
		ve.add("amount", "amount must be greater than zero")
	} else if s.MaxAmount.IsPositive() && in.Amount.GreaterThan(s.MaxAmount) {
		ve.add("amount", "amount must not exceed "+s.MaxAmount.String())
	}
	if len(in.Currency) == 3 {
		unit, err := currency.ParseISO(in.Currency)
		if err != nil {
			ve.add("currency", "currency must be an ISO 4217 code")
		} else if in.Amount.IsPositive() {
			scale, _ := currency.Standard.Rounding(unit)
			if !in.Amount.Equal(in.Amount.Truncate(int32(scale))) {
				ve.add("amount", fmt.Sprintf("amount must have at most %d decimal places for %s", scale, in.Currency))
			}
		}
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// normalizeInput trims and NFC-normalizes text fields and upper-cases the
// currency.
func normalizeInput(in CreateDepositInput) CreateDepositInput {
	clean := func(s string) string { return norm.NFC.String(strings.TrimSpace(s)) }
	in.Username = clean(in.Username)
	in.Email = strings.ToLower(clean(in.Email))
	in.Phone = clean(in.Phone)
	in.GameName = clean(in.GameName)
	in.Currency = strings.ToUpper(clean(in.Currency))
	in.PaymentMethod = strings.ToLower(clean(in.PaymentMethod))
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	return in
}

var fieldNames = map[string]string{
	"Username":      "username",
	"Email":         "email",
	"Phone":         "phone",
	"GameName":      "game_name",
	"Currency":      "currency",
	"PaymentMethod": "payment_method",
}

func fieldName(f string) string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return strings.ToLower(f)
}

func fieldMessage(fe validator.FieldError) string {
	name := fieldName(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return "email must be a valid email address"
	case "min":
		if fe.Field() == "Phone" {
			return "phone must be at least 10 characters"
		}
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "len", "alpha":
		return "currency must be an ISO 4217 code"
	case "oneof":
		return name + " must be one of: " + strings.Join(PaymentMethods, ", ")
	}
	return name + " is invalid"
}

// loggerFrom returns the request-scoped logger stored in ctx, falling back
// to the global logger.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
