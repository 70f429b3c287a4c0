// Package payments adapts external payment providers to one interface: open
// a hosted checkout session for a deposit, and turn a signed provider webhook
// into a canonical event.
//
// Each provider has explicit request and response structs and a pure mapping
// table from provider event names to domain statuses. Credentials and base
// URLs are injected through config.ProviderConfig; nothing is read from the
// environment here.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-deposit-backend/internal/domain"
)

// Provider is implemented by every payment provider adapter.
type Provider interface {
	// Name returns the stable provider key (e.g. "stripe").
	Name() string

	// CreateSession opens a hosted checkout for one deposit. Failures are
	// returned as *ProviderError.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)

	// ParseWebhook authenticates a raw delivery and decodes it. It returns
	// ErrSignature when authentication fails and ErrMalformed when the body
	// cannot be decoded.
	ParseWebhook(header http.Header, body []byte) (*Event, error)
}

// SessionRequest is what an adapter needs to open a checkout.
type SessionRequest struct {
	DepositID     string
	Amount        decimal.Decimal // major units
	Currency      string          // ISO 4217, upper case
	CustomerEmail string
	Description   string
	PaymentMethod string // bitcoin|lightning|card
	Metadata      map[string]string
}

// Session is the provider's answer to CreateSession.
type Session struct {
	ProviderRef string
	RedirectURL string
	Amount      decimal.Decimal
	Currency    string
}

// Event is a decoded webhook. Status is the canonical status the event
// implies; StatusPending means the event carries no settlement information.
type Event struct {
	Provider    string
	Type        string
	ProviderRef string
	DepositID   string // provider-echoed deposit id, informational only
	Status      domain.DepositStatus
	ReceivedAt  time.Time
}

var (
	// ErrSignature means the webhook could not be authenticated.
	ErrSignature = errors.New("payments: webhook signature verification failed")

	// ErrMalformed means an authenticated webhook body could not be decoded.
	ErrMalformed = errors.New("payments: malformed webhook payload")
)

// ProviderError reports a failed CreateSession call.
//
// Retryable is true for transport failures, timeouts, non-2xx responses and
// undecodable bodies. A 2xx response without a session id or redirect URL is
// not retryable.
type ProviderError struct {
	Provider   string
	Retryable  bool
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("payments: %s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("payments: %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a retryable *ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// toMinorUnits converts a major-unit amount to cents, rounding half away from zero.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// minorAmount is toMinorUnits for a session request. Amounts that round to
// zero cents are refused before anything is sent.
func minorAmount(provider string, req SessionRequest) (int64, error) {
	n := toMinorUnits(req.Amount)
	if n <= 0 {
		return 0, &ProviderError{Provider: provider, Message: "amount " + req.Amount.String() + " is below one minor unit"}
	}
	return n, nil
}

// depositMetadata merges the request metadata with the deposit id.
func depositMetadata(req SessionRequest) map[string]string {
	md := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		md[k] = v
	}
	md["deposit_id"] = req.DepositID
	return md
}
