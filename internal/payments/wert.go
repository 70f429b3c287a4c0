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

// Wert opens card-to-crypto orders. The deposit id travels as click_id.
type Wert struct {
	api       apiClient
	key       string
	partnerID string
	verify    verifier
}

type wertOrderRequest struct {
	PartnerID       string `json:"partner_id"`
	ClickID         string `json:"click_id"`
	Commodity       string `json:"commodity"`
	CommodityAmount int64  `json:"commodity_amount"` // cents
	Currency        string `json:"currency"`
	Email           string `json:"email,omitempty"`
	ExtraData       string `json:"extra,omitempty"`
}

type wertOrderResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

type wertEvent struct {
	Type string `json:"type"`
	Data struct {
		ID      string `json:"id"`
		ClickID string `json:"click_id"`
	} `json:"data"`
}

// NewWert builds the Wert adapter.
func NewWert(o Options) *Wert {
	return &Wert{
		api:       newAPIClient(config.ProviderWert, o.Config.BaseURL, o.HTTPClient, o.Timeout),
		key:       o.Config.APIKey,
		partnerID: o.Config.PartnerID,
		verify:    o.verifier(),
	}
}

func (w *Wert) Name() string { return config.ProviderWert }

func (w *Wert) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	amount, err := minorAmount(w.Name(), req)
	if err != nil {
		return nil, err
	}
	extra, _ := json.Marshal(depositMetadata(req))
	body := wertOrderRequest{
		PartnerID:       w.partnerID,
		ClickID:         req.DepositID,
		Commodity:       "USDC",
		CommodityAmount: amount,
		Currency:        req.Currency,
		Email:           req.CustomerEmail,
		ExtraData:       string(extra),
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+w.key)

	var out wertOrderResponse
	if err := w.api.postJSON(ctx, "/v3/orders", h, body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, w.api.missingField("id")
	}
	if out.RedirectURL == "" {
		return nil, w.api.missingField("redirect_url")
	}
	return &Session{ProviderRef: out.ID, RedirectURL: out.RedirectURL, Amount: req.Amount, Currency: req.Currency}, nil
}

// ParseWebhook verifies "Wert-Signature: sha256=<hex>".
func (w *Wert) ParseWebhook(h http.Header, body []byte) (*Event, error) {
	if err := w.verify.verifyHex(h, body, "Wert-Signature", "sha256="); err != nil {
		return nil, err
	}
	var ev wertEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		return nil, fmt.Errorf("%w: wert event", ErrMalformed)
	}
	return &Event{
		Provider:    w.Name(),
		Type:        ev.Type,
		ProviderRef: ev.Data.ID,
		DepositID:   ev.Data.ClickID,
		Status:      mapWertEvent(ev.Type),
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

func mapWertEvent(typ string) domain.DepositStatus {
	switch typ {
	case "order_processed", "order.completed":
		return domain.StatusCompleted
	case "order_failed", "order.failed":
		return domain.StatusFailed
	case "order_canceled", "order.cancelled":
		return domain.StatusCancelled
	}
	return domain.StatusPending
}
