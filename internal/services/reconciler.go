// Package services – Reconciler
//
// Reconciler turns signed provider webhooks into deposit status changes.
// Every delivery, authenticated or not, leaves one append-only audit row.
// Deliveries are always acknowledged once recorded: providers retry on
// non-2xx, and nothing a retry could fix is decided here.
//
// Correlation is by provider reference only. The deposit id a provider echoes
// back is kept in the audit payload but never used to pick a deposit.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-deposit-backend/internal/domain"
	"github.com/tbourn/go-deposit-backend/internal/payments"
	"github.com/tbourn/go-deposit-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var webhookOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deposit_webhooks_total",
		Help: "Inbound payment webhooks by provider and reconciliation outcome.",
	},
	[]string{"provider", "outcome"},
)

func init() {
	prometheus.MustRegister(webhookOutcomes)
}

// Notifier is told about deposits that reached a terminal status.
type Notifier interface {
	DepositSettled(ctx context.Context, s domain.Settlement) error
}

// Result is the verdict for one webhook delivery.
type Result struct {
	LogID     string
	Outcome   domain.WebhookOutcome
	DepositID string
	Status    domain.DepositStatus // deposit status after handling, when known
}

// Reconciler applies webhook events to deposits.
type Reconciler struct {
	DB        *gorm.DB
	Providers *payments.Registry

	// Notifier is optional.
	Notifier      Notifier
	NotifyTimeout time.Duration
}

// NewReconciler constructs a Reconciler.
func NewReconciler(db *gorm.DB, providers *payments.Registry, n Notifier) *Reconciler {
	return &Reconciler{DB: db, Providers: providers, Notifier: n, NotifyTimeout: 2 * time.Second}
}

// Handle authenticates, decodes and applies one webhook delivery.
//
// The only error returned is ErrUnknownProvider; every other failure is
// recorded in the audit log and reflected in Result.Outcome.
func (r *Reconciler) Handle(ctx context.Context, providerName string, header http.Header, body []byte) (*Result, error) {
	tr := otel.Tracer("services/Reconciler")
	ctx, span := tr.Start(ctx, "Handle", trace.WithAttributes(attribute.String("provider", providerName)))
	defer span.End()

	p, ok := r.Providers.Get(providerName)
	if !ok {
		return nil, ErrUnknownProvider
	}
	lg := loggerFrom(ctx).With().Str("provider", p.Name()).Logger()

	entry := &domain.WebhookLog{Provider: p.Name(), Payload: string(body)}
	res := &Result{}
	var settled *domain.Deposit

	ev, err := p.ParseWebhook(header, body)
	switch {
	case errors.Is(err, payments.ErrSignature):
		entry.Outcome = domain.OutcomeRejectedSignature
		entry.Error = err.Error()
		lg.Warn().Err(err).Msg("webhook rejected: bad signature")
	case err != nil:
		entry.SignatureValid = true
		entry.Outcome = domain.OutcomeMalformed
		entry.Error = err.Error()
		lg.Warn().Err(err).Msg("webhook rejected: malformed payload")
	default:
		entry.SignatureValid = true
		entry.EventType = ev.Type
		entry.ProviderRef = ev.ProviderRef
		entry.CanonicalStatus = ev.Status
		if !ev.ReceivedAt.IsZero() {
			entry.ReceivedAt = ev.ReceivedAt
		}
		lg = lg.With().Str("provider_ref", ev.ProviderRef).Str("event_type", ev.Type).Logger()
		settled = r.apply(ctx, p.Name(), ev, entry, res, lg)
	}

	r.record(ctx, entry, res, lg)
	span.SetAttributes(attribute.String("webhook.outcome", string(entry.Outcome)))

	// Notify only once the audit row is durable.
	if settled != nil {
		r.notify(ctx, settled, lg.With().Str("deposit_id", settled.ID).Logger())
	}
	return res, nil
}

// maxRejectedPayload caps the body prefix kept for oversized deliveries.
const maxRejectedPayload = 8 << 10

// RecordOversized audits a delivery whose body exceeded the size limit as
// malformed, keeping a prefix of what was read. Signatures cover the whole
// body, so nothing is verified or applied.
//
// The only error returned is ErrUnknownProvider.
func (r *Reconciler) RecordOversized(ctx context.Context, providerName string, prefix []byte, limit int64) (*Result, error) {
	p, ok := r.Providers.Get(providerName)
	if !ok {
		return nil, ErrUnknownProvider
	}
	lg := loggerFrom(ctx).With().Str("provider", p.Name()).Logger()

	if len(prefix) > maxRejectedPayload {
		prefix = prefix[:maxRejectedPayload]
	}
	entry := &domain.WebhookLog{
		Provider: p.Name(),
		Payload:  strings.ToValidUTF8(string(prefix), ""),
		Outcome:  domain.OutcomeMalformed,
		Error:    fmt.Sprintf("body exceeds %d bytes", limit),
	}
	lg.Warn().Int64("limit", limit).Msg("webhook rejected: body too large")

	res := &Result{}
	r.record(ctx, entry, res, lg)
	return res, nil
}

// record writes the audit row and copies its verdict into res. A failed write
// is logged; the delivery is still acknowledged.
func (r *Reconciler) record(ctx context.Context, entry *domain.WebhookLog, res *Result, lg zerolog.Logger) {
	if err := repo.AppendWebhookLog(ctx, r.DB, entry); err != nil {
		lg.Error().Err(err).Str("outcome", string(entry.Outcome)).Msg("write webhook audit row")
	}
	webhookOutcomes.WithLabelValues(entry.Provider, string(entry.Outcome)).Inc()

	res.LogID = entry.ID
	res.Outcome = entry.Outcome
	res.DepositID = entry.DepositID
}

// apply resolves the deposit and performs the transition, filling entry and
// res. It returns the deposit when this event moved it to a terminal status.
func (r *Reconciler) apply(ctx context.Context, provider string, ev *payments.Event, entry *domain.WebhookLog, res *Result, lg zerolog.Logger) *domain.Deposit {
	if ev.ProviderRef == "" {
		entry.Outcome = domain.OutcomeUnknownRef
		entry.Error = "event carries no provider reference"
		lg.Warn().Msg("webhook without provider reference")
		return nil
	}

	d, err := repo.FindByProviderRef(ctx, r.DB, ev.ProviderRef)
	if repo.IsNotFound(err) {
		entry.Outcome = domain.OutcomeUnknownRef
		lg.Warn().Str("echoed_deposit_id", ev.DepositID).Msg("webhook for unknown provider reference")
		return nil
	}
	if err != nil {
		entry.Outcome = domain.OutcomeStoreError
		entry.Error = err.Error()
		lg.Error().Err(err).Msg("lookup deposit by provider reference")
		return nil
	}
	entry.DepositID = d.ID
	res.Status = d.Status
	lg = lg.With().Str("deposit_id", d.ID).Logger()

	if d.Provider != provider {
		entry.Outcome = domain.OutcomeProviderMismatch
		entry.Error = "deposit belongs to provider " + d.Provider
		lg.Error().Str("deposit_provider", d.Provider).Msg("webhook provider does not own deposit")
		return nil
	}
	if ev.Status == domain.StatusPending {
		entry.Outcome = domain.OutcomeIgnoredPending
		lg.Debug().Msg("non-settling webhook event")
		return nil
	}

	updated, err := repo.TransitionDeposit(ctx, r.DB, d.ID, ev.Status)
	var ite *repo.InvalidTransitionError
	switch {
	case err == nil:
		entry.Outcome = domain.OutcomeApplied
		res.Status = updated.Status
		lg.Info().Str("status", string(updated.Status)).Msg("deposit status applied")
		if updated.Status.IsTerminal() {
			return updated
		}
	case errors.Is(err, repo.ErrAlreadyInState):
		entry.Outcome = domain.OutcomeDuplicate
		lg.Info().Str("status", string(ev.Status)).Msg("duplicate webhook")
	case errors.As(err, &ite):
		entry.Error = err.Error()
		res.Status = ite.From
		if ite.From.IsTerminal() {
			entry.Outcome = domain.OutcomeConflict
			lg.Error().Str("current", string(ite.From)).Str("requested", string(ite.To)).
				Msg("conflicting terminal webhook; manual review required")
		} else {
			entry.Outcome = domain.OutcomeInvalidTransition
			lg.Warn().Str("current", string(ite.From)).Str("requested", string(ite.To)).Msg("webhook transition refused")
		}
	default:
		entry.Outcome = domain.OutcomeStoreError
		entry.Error = err.Error()
		lg.Error().Err(err).Msg("apply deposit transition")
	}
	return nil
}

// notify runs after the transition and its audit row are committed;
// failures are only logged.
func (r *Reconciler) notify(ctx context.Context, d *domain.Deposit, lg zerolog.Logger) {
	if r.Notifier == nil {
		return
	}
	timeout := r.NotifyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := r.Notifier.DepositSettled(nctx, domain.NewSettlement(d)); err != nil {
		lg.Warn().Err(err).Msg("settlement notification failed")
	}
}
