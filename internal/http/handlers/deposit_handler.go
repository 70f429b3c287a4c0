// Deposit HTTP handlers.
//
//   - POST /deposits        (create and open a checkout session)
//   - GET  /deposits/{id}   (status polling from the success page)
//
// Handlers stay transport-thin: bind JSON, call the service, map errors.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-deposit-backend/internal/domain"
	"github.com/tbourn/go-deposit-backend/internal/http/middleware"
	"github.com/tbourn/go-deposit-backend/internal/repo"
	"github.com/tbourn/go-deposit-backend/internal/services"
)

// DepositService is the intake side consumed by the deposit handlers.
type DepositService interface {
	Create(ctx context.Context, in services.CreateDepositInput) (*services.CreateDepositResult, error)
	Get(ctx context.Context, id string) (*domain.Deposit, error)
}

// WebhookReconciler applies provider notifications.
type WebhookReconciler interface {
	Handle(ctx context.Context, provider string, header http.Header, body []byte) (*services.Result, error)
	RecordOversized(ctx context.Context, provider string, prefix []byte, limit int64) (*services.Result, error)
}

// AdminService backs the operator endpoints.
type AdminService interface {
	ListDeposits(ctx context.Context, status domain.DepositStatus, page, pageSize int) ([]domain.Deposit, int64, error)
	DepositsETag(ctx context.Context, status domain.DepositStatus) (string, error)
	Stats(ctx context.Context) ([]repo.StatusTotal, error)
	ListWebhookLogs(ctx context.Context, f repo.WebhookLogFilter, page, pageSize int) ([]domain.WebhookLog, int64, error)
}

// Handlers groups the HTTP endpoints. Admin may be nil when admin routes are
// disabled.
type Handlers struct {
	deposits   DepositService
	reconciler WebhookReconciler
	admin      AdminService
}

// New binds the handlers to their services.
func New(deposits DepositService, reconciler WebhookReconciler, admin AdminService) *Handlers {
	return &Handlers{deposits: deposits, reconciler: reconciler, admin: admin}
}

// CreateDepositRequest is the deposit form submitted by the player.
type CreateDepositRequest struct {
	Username      string          `json:"username"       example:"alice"`
	Email         string          `json:"email"          example:"alice@example.com"`
	Phone         string          `json:"phone"          example:"+15551234567"`
	GameName      string          `json:"game_name"      example:"Orion Stars"`
	Amount        decimal.Decimal `json:"amount"         swaggertype:"string" example:"25.00"`
	Currency      string          `json:"currency"       example:"USD"`
	PaymentMethod string          `json:"payment_method" example:"bitcoin" enums:"bitcoin,lightning,card"`
}

// CreateDepositResponse tells the UI where to send the player.
type CreateDepositResponse struct {
	DepositID   string               `json:"deposit_id"   example:"4f1c2d8e-9a7b-4c3d-8e2f-1a2b3c4d5e6f"`
	RedirectURL string               `json:"redirect_url" example:"https://checkout.stripe.com/c/pay/cs_test_a1"`
	Status      domain.DepositStatus `json:"status"       example:"pending_payment"`
}

// DepositResponse is the public view of a deposit; contact details are left out.
type DepositResponse struct {
	ID            string               `json:"deposit_id"`
	Status        domain.DepositStatus `json:"status"`
	Amount        decimal.Decimal      `json:"amount" swaggertype:"string"`
	Currency      string               `json:"currency"`
	PaymentMethod string               `json:"payment_method"`
	Provider      string               `json:"provider,omitempty"`
	RedirectURL   string               `json:"redirect_url,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	SettledAt     *time.Time           `json:"settled_at,omitempty"`
}

// CreateDeposit godoc
// @ID          createDeposit
// @Summary     Create a deposit
// @Description Records the deposit, opens a hosted checkout with the configured provider and returns the redirect URL. Replays of an Idempotency-Key return the original deposit.
// @Tags        Deposits
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Client retry key"  example(dep-7f3a)
// @Param       body             body    handlers.CreateDepositRequest  true  "Deposit form"
//
// @Success     201  {object}  handlers.CreateDepositResponse
// @Success     200  {object}  handlers.CreateDepositResponse  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Same Idempotency-Key still in progress"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider rejected the request"
// @Failure     503  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Router      /deposits [post]
func (h *Handlers) CreateDeposit(c *gin.Context) {
	var req CreateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.deposits.Create(c.Request.Context(), services.CreateDepositInput{
		Username:       req.Username,
		Email:          req.Email,
		Phone:          req.Phone,
		GameName:       req.GameName,
		Amount:         req.Amount,
		Currency:       req.Currency,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: key,
	})
	if err != nil {
		failService(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		c.Header("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	ok(c, status, CreateDepositResponse{
		DepositID:   res.DepositID,
		RedirectURL: res.RedirectURL,
		Status:      res.Status,
	})
}

// GetDeposit godoc
// @ID          getDeposit
// @Summary     Get deposit status
// @Tags        Deposits
// @Produce     json
// @Param       id   path      string  true  "Deposit ID"  format(uuid)
// @Success     200  {object}  handlers.DepositResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Deposit not found"
// @Router      /deposits/{id} [get]
func (h *Handlers) GetDeposit(c *gin.Context) {
	d, err := h.deposits.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, toDepositResponse(d))
}

func toDepositResponse(d *domain.Deposit) DepositResponse {
	return DepositResponse{
		ID:            d.ID,
		Status:        d.Status,
		Amount:        d.Amount,
		Currency:      d.Currency,
		PaymentMethod: d.PaymentMethod,
		Provider:      d.Provider,
		RedirectURL:   d.RedirectURL,
		CreatedAt:     d.CreatedAt,
		SettledAt:     d.SettledAt,
	}
}
