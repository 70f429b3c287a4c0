// Package domain defines the persistence models for deposits and the webhook
// audit trail. These types are mapped with GORM and form the core data layer
// of the deposit backend.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Deposit represents one player's attempt to add funds. It is created locally
// before any provider is contacted and is never deleted.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), assigned once at insert.
//   - Username / Email / Phone / GameName: contact and target-account fields,
//     validated at intake only.
//   - Amount / Currency: the authoritative amount; immutable after insert.
//   - PaymentMethod: bitcoin, lightning or card, forwarded to providers.
//   - Provider / ProviderRef: the provider session this deposit is bound to.
//     ProviderRef is NULL until a session exists and is written at most once.
//   - RedirectURL: checkout URL returned together with the session.
//   - Status: lifecycle state (see DepositStatus).
//   - Metadata: opaque bag echoed to the provider.
//   - SettledAt: time a terminal status was applied.
type Deposit struct {
	ID            string            `json:"id"             gorm:"type:char(36);primaryKey"`
	Username      string            `json:"username"       gorm:"type:varchar(128);not null"`
	Email         string            `json:"email"          gorm:"type:varchar(255);not null"`
	Phone         string            `json:"phone"          gorm:"type:varchar(32);not null"`
	GameName      string            `json:"game_name"      gorm:"type:varchar(128);not null"`
	Amount        decimal.Decimal   `json:"amount"         gorm:"type:numeric(20,8);not null"`
	Currency      string            `json:"currency"       gorm:"type:varchar(8);not null"`
	PaymentMethod string            `json:"payment_method" gorm:"type:varchar(16);not null;default:'bitcoin'"`
	Provider      string            `json:"provider"       gorm:"type:varchar(32);not null;default:''"`
	ProviderRef   *string           `json:"provider_ref"   gorm:"type:varchar(191);uniqueIndex:ux_deposits_provider_ref"`
	RedirectURL   string            `json:"redirect_url"   gorm:"type:text;not null;default:''"`
	Status        DepositStatus     `json:"status"         gorm:"type:varchar(20);not null;index:idx_deposits_status"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	SettledAt     *time.Time        `json:"settled_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"     gorm:"index:idx_deposits_created"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TableName returns the database table name for Deposit.
func (Deposit) TableName() string { return "deposits" }

// HasProviderRef reports whether a provider session is attached.
func (d *Deposit) HasProviderRef() bool {
	return d.ProviderRef != nil && *d.ProviderRef != ""
}

// WebhookOutcome is the audit verdict recorded for one inbound webhook.
type WebhookOutcome string

const (
	OutcomeApplied           WebhookOutcome = "applied"
	OutcomeDuplicate         WebhookOutcome = "duplicate"
	OutcomeIgnoredPending    WebhookOutcome = "ignored_pending"
	OutcomeUnknownRef        WebhookOutcome = "unknown_ref"
	OutcomeConflict          WebhookOutcome = "conflict"
	OutcomeInvalidTransition WebhookOutcome = "invalid_transition"
	OutcomeRejectedSignature WebhookOutcome = "rejected_signature"
	OutcomeMalformed         WebhookOutcome = "malformed"
	OutcomeProviderMismatch  WebhookOutcome = "provider_mismatch"
	OutcomeStoreError        WebhookOutcome = "store_error"
)

// WebhookLog is an append-only audit row for every webhook delivery,
// regardless of whether it changed any deposit.
//
// Payload keeps the raw request body as text so that unparseable or
// unauthenticated deliveries can still be inspected.
type WebhookLog struct {
	ID              string         `json:"id"               gorm:"type:char(26);primaryKey"`
	Provider        string         `json:"provider"         gorm:"type:varchar(32);not null;index:idx_webhook_logs_provider"`
	EventType       string         `json:"event_type"       gorm:"type:varchar(100);not null;default:''"`
	ProviderRef     string         `json:"provider_ref"     gorm:"type:varchar(191);not null;default:'';index:idx_webhook_logs_ref"`
	DepositID       string         `json:"deposit_id"       gorm:"type:varchar(36);not null;default:''"`
	CanonicalStatus DepositStatus  `json:"canonical_status" gorm:"type:varchar(20);not null;default:''"`
	SignatureValid  bool           `json:"signature_valid"  gorm:"not null;default:false"`
	Outcome         WebhookOutcome `json:"outcome"          gorm:"type:varchar(32);not null;index:idx_webhook_logs_outcome"`
	Error           string         `json:"error,omitempty"  gorm:"type:text;not null;default:''"`
	Payload         string         `json:"payload"          gorm:"type:text;not null"`
	ReceivedAt      time.Time      `json:"received_at"      gorm:"not null;index:idx_webhook_logs_received"`
}

// TableName returns the database table name for WebhookLog.
func (WebhookLog) TableName() string { return "webhook_logs" }
