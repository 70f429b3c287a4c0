package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tbourn/go-deposit-backend/internal/config"
	"github.com/tbourn/go-deposit-backend/internal/domain"
)

// Paidly issues bitcoin/lightning invoices.
type Paidly struct {
	api         apiClient
	key         string
	storeID     string
	callbackURL string
	verify      verifier
}

type paidlyInvoiceRequest struct {
	Amount        int64             `json:"amount"` // cents
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Description   string            `json:"description,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	CallbackURL   string            `json:"callback_url,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

type paidlyInvoiceResponse struct {
	ID         string `json:"id"`
	PaymentURL string `json:"payment_url"`
}

type paidlyEvent struct {
	EventType string            `json:"event_type"`
	ID        string            `json:"id"`
	InvoiceID string            `json:"invoice_id"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata"`
}

// NewPaidly builds the Paidly adapter.
func NewPaidly(o Options) *Paidly {
	return &Paidly{
		api:         newAPIClient(config.ProviderPaidly, o.Config.BaseURL, o.HTTPClient, o.Timeout),
		key:         o.Config.APIKey,
		storeID:     o.Config.PartnerID,
		callbackURL: o.webhookURL(config.ProviderPaidly),
		verify:      o.verifier(),
	}
}

func (p *Paidly) Name() string { return config.ProviderPaidly }

func (p *Paidly) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	method := req.PaymentMethod
	if method != "lightning" {
		method = "bitcoin"
	}
	amount, err := minorAmount(p.Name(), req)
	if err != nil {
		return nil, err
	}
	body := paidlyInvoiceRequest{
		Amount:        amount,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		Description:   req.Description,
		PaymentMethod: method,
		CallbackURL:   p.callbackURL,
		Metadata:      depositMetadata(req),
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.key)
	if p.storeID != "" {
		h.Set("X-Store-ID", p.storeID)
	}

	var out paidlyInvoiceResponse
	if err := p.api.postJSON(ctx, "/v1/invoices", h, body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, p.api.missingField("id")
	}
	if out.PaymentURL == "" {
		return nil, p.api.missingField("payment_url")
	}
	return &Session{ProviderRef: out.ID, RedirectURL: out.PaymentURL, Amount: req.Amount, Currency: req.Currency}, nil
}

// ParseWebhook verifies "X-Paidly-Signature: <hex>". Paidly posts the
// invoice itself; the reference is invoice_id, or id on invoice objects.
func (p *Paidly) ParseWebhook(h http.Header, body []byte) (*Event, error) {
	if err := p.verify.verifyHex(h, body, "X-Paidly-Signature", ""); err != nil {
		return nil, err
	}
	var ev paidlyEvent
	if err := json.Unmarshal(body, &ev); err != nil || (ev.EventType == "" && ev.Status == "") {
		return nil, fmt.Errorf("%w: paidly event", ErrMalformed)
	}
	ref := ev.InvoiceID
	if ref == "" {
		ref = ev.ID
	}
	typ := ev.EventType
	if typ == "" {
		typ = "invoice." + ev.Status
	}
	return &Event{
		Provider:    p.Name(),
		Type:        typ,
		ProviderRef: ref,
		DepositID:   ev.Metadata["deposit_id"],
		Status:      mapPaidlyEvent(ev.EventType, ev.Status),
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

func mapPaidlyEvent(typ, status string) domain.DepositStatus {
	switch {
	case typ == "invoice.paid" || status == "paid" || status == "settled" || status == "confirmed":
		return domain.StatusCompleted
	case typ == "invoice.expired" || status == "expired":
		return domain.StatusFailed
	case typ == "invoice.cancelled" || status == "cancelled":
		return domain.StatusCancelled
	}
	return domain.StatusPending
}
