package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares. webhook may
// be nil when WhatsApp is not configured.
func New(finance *handlers.FinanceHandler, webhook *handlers.WebhookHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.GET("/summary", finance.Summary)
		api.GET("/production", finance.Production)

		api.GET("/lots", finance.ListLots)
		api.POST("/lots", finance.CreateLot)
		api.GET("/lots/:id", finance.GetLot)
		api.GET("/lots/:id/summary", finance.LotSummary)
		api.GET("/lots/:id/production", finance.LotProduction)
		api.GET("/lots/:id/egg-estimate", finance.EggEstimate)
		api.POST("/lots/:id/split", finance.Split)
		api.GET("/lots/:id/splits", finance.Splits)
		api.PUT("/lots/:id/authoritative-summary", finance.SaveAuthoritativeSummary)

		api.POST("/buildings", finance.SaveBuilding)
		api.POST("/sales", finance.CreateSale)
		api.POST("/expenses", finance.CreateExpense)
		api.PUT("/production", finance.RecordProduction)

		api.GET("/snapshots", finance.Snapshots)
		api.POST("/import", finance.Import)
	}

	if webhook != nil {
		r.GET("/webhook", webhook.Verify)
		r.POST("/webhook", webhook.Receive)
		api.POST("/messages", webhook.SendMessage)
	}

	if logger != nil {
		logger.Info("router initialized", zap.Bool("whatsapp", webhook != nil))
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request completed", fields...)
			return
		}
		logger.Info("request completed", fields...)
	}
}
