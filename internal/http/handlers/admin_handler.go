// Operator endpoints under /admin. Authentication happens in middleware; these
// handlers assume an admin caller.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-deposit-backend/internal/domain"
	"github.com/tbourn/go-deposit-backend/internal/repo"
	"github.com/tbourn/go-deposit-backend/internal/utils"
)

// Pagination carries paging metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListDepositsResponse is one page of deposits.
type ListDepositsResponse struct {
	Deposits   []domain.Deposit `json:"deposits"`
	Pagination Pagination       `json:"pagination"`
}

// StatsResponse summarizes deposits per status.
type StatsResponse struct {
	Totals    []repo.StatusTotal `json:"totals"`
	Completed int64              `json:"completed"`
	Pending   int64              `json:"pending"`
}

// ListWebhookLogsResponse is one page of webhook audit rows.
type ListWebhookLogsResponse struct {
	Logs       []domain.WebhookLog `json:"logs"`
	Pagination Pagination          `json:"pagination"`
}

func pageParams(c *gin.Context) (page, size int) {
	page, size, _ = utils.Page(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
	return page, size
}

func pagination(page, size int, total int64) Pagination {
	pages := utils.TotalPages(total, size)
	return Pagination{Page: page, PageSize: size, Total: total, TotalPages: pages, HasNext: page < pages}
}

// ListDeposits godoc
// @ID          adminListDeposits
// @Summary     List deposits
// @Description Newest first, optionally filtered by status. Supports a weak ETag via If-None-Match.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       status         query   string  false  "Status filter"  Enums(pending,pending_payment,completed,failed,cancelled)
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListDepositsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     422  {object}  handlers.ErrorResponse  "Unknown status"
// @Router      /admin/deposits [get]
func (h *Handlers) ListDeposits(c *gin.Context) {
	ctx := c.Request.Context()
	status := domain.DepositStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	page, size := pageParams(c)

	if status == "" || status.Valid() {
		if etag, err := h.admin.DepositsETag(ctx, status); err == nil {
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.admin.ListDeposits(ctx, status, page, size)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListDepositsResponse{Deposits: items, Pagination: pagination(page, size, total)})
}

// DepositStats godoc
// @ID          adminDepositStats
// @Summary     Deposit counts and amounts per status
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.StatsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /admin/deposits/stats [get]
func (h *Handlers) DepositStats(c *gin.Context) {
	totals, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not compute stats")
		return
	}
	resp := StatsResponse{Totals: totals}
	for _, t := range totals {
		switch {
		case t.Status == domain.StatusCompleted:
			resp.Completed += t.Count
		case !t.Status.IsTerminal():
			resp.Pending += t.Count
		}
	}
	ok(c, http.StatusOK, resp)
}

// ListWebhookLogs godoc
// @ID          adminListWebhookLogs
// @Summary     List webhook deliveries
// @Description Audit rows, newest first, with optional provider, provider_ref and outcome filters.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       provider      query  string  false  "Provider name"
// @Param       provider_ref  query  string  false  "Provider reference"
// @Param       outcome       query  string  false  "Outcome"
// @Param       page          query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size     query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListWebhookLogsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /admin/webhook-logs [get]
func (h *Handlers) ListWebhookLogs(c *gin.Context) {
	page, size := pageParams(c)
	f := repo.WebhookLogFilter{
		Provider:    strings.ToLower(strings.TrimSpace(c.Query("provider"))),
		ProviderRef: strings.TrimSpace(c.Query("provider_ref")),
		Outcome:     domain.WebhookOutcome(strings.TrimSpace(c.Query("outcome"))),
	}

	logs, total, err := h.admin.ListWebhookLogs(c.Request.Context(), f, page, size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list webhook logs")
		return
	}
	ok(c, http.StatusOK, ListWebhookLogsResponse{Logs: logs, Pagination: pagination(page, size, total)})
}
