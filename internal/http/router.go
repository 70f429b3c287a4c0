// Package httpapi wires the Gin transport to the deposit services, the
// middleware stack and the route handlers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-deposit-backend/internal/config"
	"github.com/tbourn/go-deposit-backend/internal/http/handlers"
	"github.com/tbourn/go-deposit-backend/internal/http/middleware"
	"github.com/tbourn/go-deposit-backend/internal/payments"
	"github.com/tbourn/go-deposit-backend/internal/repo"
	"github.com/tbourn/go-deposit-backend/internal/services"
)

const depositsScope = "deposits"

// RegisterRoutes attaches middleware and endpoints to r.
//
// Global order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. CORS and security headers
//
// POST /deposits additionally runs the idempotency validator and then the
// rate limiter, so replays skip the limiter. Webhooks are never rate limited:
// providers retry on 429 and would only add load. Admin routes are mounted
// only when an admin JWT secret is configured.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, providers *payments.Registry, notifier services.Notifier, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", "X-Webhook-Secret"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(bodyLimit(cfg.MaxBodyBytes)))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(db))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// services
	depositSvc := services.NewDepositService(db, providers)
	if cfg.Payments.SessionAttempts > 0 {
		depositSvc.SessionAttempts = cfg.Payments.SessionAttempts
	}
	if cfg.IdempotencyTTL > 0 {
		depositSvc.IdempotencyTTL = cfg.IdempotencyTTL
	}
	if cfg.Payments.MaxAmount.IsPositive() {
		depositSvc.MaxAmount = cfg.Payments.MaxAmount
	}
	reconciler := services.NewReconciler(db, providers, notifier)
	if cfg.Notify.Timeout > 0 {
		reconciler.NotifyTimeout = cfg.Notify.Timeout
	}
	h := handlers.New(depositSvc, reconciler, services.NewAdminService(db))

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		publicRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySubjectOrIP())
		idem := middleware.IdempotencyValidator(
			middleware.IdempotencyOptions{MaxLen: 200, Scope: depositsScope},
			idempotencyLookup(db),
		)
		api.POST("/deposits", idem, publicRL.Handler(), h.CreateDeposit)
		api.GET("/deposits/:id", publicRL.Handler(), h.GetDeposit)

		api.POST("/webhooks/:provider", h.ReceiveWebhook)
	}

	if cfg.Admin.JWTSecret != "" {
		adminRL := middleware.NewRateLimiter(cfg.RateRPS*4, cfg.RateBurst*2, middleware.KeyBySubjectOrIP())
		admin := api.Group("/admin",
			middleware.AdminAuth(middleware.AdminAuthOptions{
				Secret: []byte(cfg.Admin.JWTSecret),
				Issuer: cfg.Admin.Issuer,
			}),
			adminRL.Handler(),
			gzip.Gzip(gzip.DefaultCompression),
		)
		admin.GET("/deposits", h.ListDeposits)
		admin.GET("/deposits/stats", h.DepositStats)
		admin.GET("/webhook-logs", h.ListWebhookLogs)
	}
}

// idempotencyLookup reports whether an unexpired Idempotency-Key record
// exists for a request that already completed. A key still reserved by an
// in-flight request is not a replay.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, scope, key, now)
		switch {
		case err == nil:
			return rec.Status == http.StatusCreated, nil
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}

// health pings the database; 503 when it is unreachable.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			middleware.LoggerFrom(c).Error().Err(err).Msg("health: database unreachable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// gin-contrib/cors skips requests without Origin; health checks still see ACAO
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies with http.MaxBytesReader; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func bodyLimit(n int64) int64 {
	if n <= 0 {
		return 1 << 20
	}
	return n
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
