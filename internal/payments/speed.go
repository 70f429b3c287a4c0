package payments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tbourn/go-deposit-backend/internal/config"
	"github.com/tbourn/go-deposit-backend/internal/domain"
)

// Speed opens TrySpeed checkout sessions settled in bitcoin (lightning or
// on-chain). Amounts are sent in major units.
type Speed struct {
	api        apiClient
	key        string
	successURL string
	cancelURL  string
	verify     verifier
}

type speedSessionRequest struct {
	Amount         json.Number       `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description,omitempty"`
	CustomerEmail  string            `json:"customer_email,omitempty"`
	TargetCurrency string            `json:"target_currency"`
	PaymentMethods []string          `json:"payment_methods"`
	SuccessURL     string            `json:"success_url,omitempty"`
	CancelURL      string            `json:"cancel_url,omitempty"`
	Metadata       map[string]string `json:"metadata"`
}

type speedSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type speedObject struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

type speedEvent struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
	Data      struct {
		speedObject
		Object *speedObject `json:"object"`
	} `json:"data"`
}

// NewSpeed builds the Speed adapter.
func NewSpeed(o Options) *Speed {
	return &Speed{
		api:        newAPIClient(config.ProviderSpeed, o.Config.BaseURL, o.HTTPClient, o.Timeout),
		key:        o.Config.APIKey,
		successURL: o.SuccessURL,
		cancelURL:  o.CancelURL,
		verify:     o.verifier(),
	}
}

func (s *Speed) Name() string { return config.ProviderSpeed }

func (s *Speed) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	method := "on_chain"
	if req.PaymentMethod == "lightning" {
		method = "lightning"
	}
	body := speedSessionRequest{
		Amount:         json.Number(req.Amount.String()),
		Currency:       req.Currency,
		Description:    req.Description,
		CustomerEmail:  req.CustomerEmail,
		TargetCurrency: "SATS",
		PaymentMethods: []string{method},
		SuccessURL:     withQuery(s.successURL, "deposit_id", req.DepositID),
		CancelURL:      withQuery(s.cancelURL, "deposit_id", req.DepositID),
		Metadata:       depositMetadata(req),
	}

	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(s.key+":")))

	var out speedSessionResponse
	if err := s.api.postJSON(ctx, "/v1/checkout_sessions", h, body, &out); err != nil {
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

// ParseWebhook verifies the Standard Webhooks headers. The event name is
// read from event_type, or type when that is absent. The session id is
// data.object.id when the event wraps an object, data.id otherwise.
func (s *Speed) ParseWebhook(h http.Header, body []byte) (*Event, error) {
	if err := s.verify.verifyStandard(h, body); err != nil {
		return nil, err
	}
	var ev speedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: speed event", ErrMalformed)
	}
	typ := ev.EventType
	if typ == "" {
		typ = ev.Type
	}
	if typ == "" {
		return nil, fmt.Errorf("%w: speed event without type", ErrMalformed)
	}
	obj := ev.Data.speedObject
	if ev.Data.Object != nil {
		obj = *ev.Data.Object
	}
	return &Event{
		Provider:    s.Name(),
		Type:        typ,
		ProviderRef: obj.ID,
		DepositID:   obj.Metadata["deposit_id"],
		Status:      mapSpeedEvent(typ),
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

func mapSpeedEvent(typ string) domain.DepositStatus {
	switch typ {
	case "checkout_session.completed", "checkout_session.paid", "payment.succeeded", "payment.paid":
		return domain.StatusCompleted
	case "checkout_session.expired", "payment.failed":
		return domain.StatusFailed
	case "checkout_session.cancelled", "payment.cancelled":
		return domain.StatusCancelled
	}
	return domain.StatusPending
}
