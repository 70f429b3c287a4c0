package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-deposit-backend/internal/config"
	"github.com/tbourn/go-deposit-backend/internal/domain"
)

// Stripe opens Checkout Sessions and consumes checkout.session.* events.
type Stripe struct {
	api        apiClient
	key        string
	successURL string
	cancelURL  string
	verify     verifier
}

type stripeSessionResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Currency string `json:"currency"`
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			Object            string            `json:"object"`
			ClientReferenceID string            `json:"client_reference_id"`
			PaymentStatus     string            `json:"payment_status"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// NewStripe builds the Stripe adapter.
func NewStripe(o Options) *Stripe {
	return &Stripe{
		api:        newAPIClient(config.ProviderStripe, o.Config.BaseURL, o.HTTPClient, o.Timeout),
		key:        o.Config.APIKey,
		successURL: o.SuccessURL,
		cancelURL:  o.CancelURL,
		verify:     o.verifier(),
	}
}

func (s *Stripe) Name() string { return config.ProviderStripe }

// CreateSession posts a one-line-item Checkout Session in cents.
func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	amount, err := minorAmount(s.Name(), req)
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", withQuery(s.successURL, "deposit_id", req.DepositID))
	form.Set("cancel_url", withQuery(s.cancelURL, "deposit_id", req.DepositID))
	form.Set("client_reference_id", req.DepositID)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	for k, v := range depositMetadata(req) {
		form.Set("metadata["+k+"]", v)
		form.Set("payment_intent_data[metadata]["+k+"]", v)
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.key)
	h.Set("Idempotency-Key", "deposit-"+req.DepositID)

	var out stripeSessionResponse
	if err := s.api.postForm(ctx, "/v1/checkout/sessions", h, form, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, s.api.missingField("id")
	}
	if out.URL == "" {
		return nil, s.api.missingField("url")
	}
	return &Session{ProviderRef: out.ID, RedirectURL: out.URL, Amount: req.Amount, Currency: req.Currency}, nil
}

// ParseWebhook verifies Stripe-Signature and decodes the event envelope.
func (s *Stripe) ParseWebhook(h http.Header, body []byte) (*Event, error) {
	if err := s.verify.verifyStripe(h, body); err != nil {
		return nil, err
	}
	var ev stripeEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		return nil, fmt.Errorf("%w: stripe event", ErrMalformed)
	}
	obj := ev.Data.Object
	depositID := obj.ClientReferenceID
	if depositID == "" {
		depositID = obj.Metadata["deposit_id"]
	}
	return &Event{
		Provider:    s.Name(),
		Type:        ev.Type,
		ProviderRef: obj.ID,
		DepositID:   depositID,
		Status:      mapStripeEvent(ev.Type, obj.PaymentStatus),
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

// mapStripeEvent: a completed session is only settled when paid; delayed
// methods settle through the async_payment_* events.
func mapStripeEvent(typ, paymentStatus string) domain.DepositStatus {
	switch typ {
	case "checkout.session.completed":
		if paymentStatus == "paid" || paymentStatus == "no_payment_required" {
			return domain.StatusCompleted
		}
		return domain.StatusPending
	case "checkout.session.async_payment_succeeded":
		return domain.StatusCompleted
	case "checkout.session.async_payment_failed":
		return domain.StatusFailed
	case "checkout.session.expired":
		return domain.StatusCancelled
	}
	return domain.StatusPending
}

func withQuery(raw, k, v string) string {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return raw
	}
	q := u.Query()
	q.Set(k, v)
	u.RawQuery = q.Encode()
	return u.String()
}
