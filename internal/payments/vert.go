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

// Vert opens hosted payment sessions.
type Vert struct {
	api       apiClient
	key       string
	partnerID string
	returnURL string
	verify    verifier
}

type vertSessionRequest struct {
	PartnerID     string            `json:"partner_id,omitempty"`
	Amount        int64             `json:"amount"` // cents
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Description   string            `json:"description,omitempty"`
	ReturnURL     string            `json:"return_url,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

type vertSessionResponse struct {
	ID         string `json:"id"`
	PaymentURL string `json:"payment_url"`
}

type vertObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

type vertEvent struct {
	Type string `json:"type"`
	Data struct {
		vertObject
		Object *vertObject `json:"object"`
	} `json:"data"`
}

// NewVert builds the Vert adapter.
func NewVert(o Options) *Vert {
	return &Vert{
		api:       newAPIClient(config.ProviderVert, o.Config.BaseURL, o.HTTPClient, o.Timeout),
		key:       o.Config.APIKey,
		partnerID: o.Config.PartnerID,
		returnURL: o.SuccessURL,
		verify:    o.verifier(),
	}
}

func (v *Vert) Name() string { return config.ProviderVert }

func (v *Vert) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	amount, err := minorAmount(v.Name(), req)
	if err != nil {
		return nil, err
	}
	body := vertSessionRequest{
		PartnerID:     v.partnerID,
		Amount:        amount,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		Description:   req.Description,
		ReturnURL:     withQuery(v.returnURL, "deposit_id", req.DepositID),
		Metadata:      depositMetadata(req),
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+v.key)

	var out vertSessionResponse
	if err := v.api.postJSON(ctx, "/v1/payment-sessions", h, body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, v.api.missingField("id")
	}
	if out.PaymentURL == "" {
		return nil, v.api.missingField("payment_url")
	}
	return &Session{ProviderRef: out.ID, RedirectURL: out.PaymentURL, Amount: req.Amount, Currency: req.Currency}, nil
}

// ParseWebhook verifies "Vert-Signature: <hex>".
func (v *Vert) ParseWebhook(h http.Header, body []byte) (*Event, error) {
	if err := v.verify.verifyHex(h, body, "Vert-Signature", ""); err != nil {
		return nil, err
	}
	var ev vertEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		return nil, fmt.Errorf("%w: vert event", ErrMalformed)
	}
	obj := ev.Data.vertObject
	if ev.Data.Object != nil {
		obj = *ev.Data.Object
	}
	return &Event{
		Provider:    v.Name(),
		Type:        ev.Type,
		ProviderRef: obj.ID,
		DepositID:   obj.Metadata["deposit_id"],
		Status:      mapVertEvent(ev.Type),
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

func mapVertEvent(typ string) domain.DepositStatus {
	switch typ {
	case "payment.completed", "payment_session.completed":
		return domain.StatusCompleted
	case "payment.failed", "payment_session.failed":
		return domain.StatusFailed
	case "payment.cancelled", "payment_session.cancelled":
		return domain.StatusCancelled
	}
	return domain.StatusPending
}
