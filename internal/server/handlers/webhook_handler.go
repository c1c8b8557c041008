package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	service "github.com/mamadbah2/farmledger/internal/service/whatsapp"
)

// businessAccountObject is the only webhook object type carrying farm messages.
const businessAccountObject = "whatsapp_business_account"

// WebhookHandler receives report requests from WhatsApp and lets operators
// push messages to farm staff.
type WebhookHandler struct {
	svc    service.MessagingService
	logger *zap.Logger
}

// NewWebhookHandler constructs the HTTP handler adapter.
func NewWebhookHandler(svc service.MessagingService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{svc: svc, logger: logger.Named("webhook")}
}

type verifyQuery struct {
	Mode      string `form:"hub.mode"`
	Token     string `form:"hub.verify_token"`
	Challenge string `form:"hub.challenge"`
}

// Verify answers the subscription challenge sent when the webhook is registered.
func (h *WebhookHandler) Verify(c *gin.Context) {
	var q verifyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.String(http.StatusBadRequest, "invalid query")
		return
	}

	challenge, err := h.svc.VerifyWebhookToken(q.Mode, q.Token, q.Challenge)
	if err != nil {
		h.logger.Warn("subscription challenge rejected", zap.String("mode", q.Mode), zap.Error(err))
		c.String(http.StatusForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// Receive runs the report commands found in a webhook callback. Replies that
// fail to send are logged and still acknowledged, so Meta does not redeliver
// the callback and run the commands twice.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("invalid webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if payload.Object != "" && payload.Object != businessAccountObject {
		h.logger.Debug("ignoring webhook object", zap.String("object", payload.Object))
		c.Status(http.StatusOK)
		return
	}

	messages := countMessages(payload)
	if err := h.svc.HandleWebhook(c.Request.Context(), payload); err != nil {
		h.logger.Error("report replies failed", zap.Int("messages", messages), zap.Error(err))
	} else if messages > 0 {
		h.logger.Info("report requests answered", zap.Int("messages", messages))
	}
	c.Status(http.StatusOK)
}

// SendMessage pushes a free-form message, e.g. a manual report, to a number.
func (h *WebhookHandler) SendMessage(c *gin.Context) {
	var req models.OutboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must not be blank"})
		return
	}

	if err := h.svc.SendOutbound(c.Request.Context(), req); err != nil {
		h.logger.Error("outbound message failed", zap.String("to", req.To), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to send message"})
		return
	}
	c.Status(http.StatusAccepted)
}

func countMessages(payload models.WebhookPayload) int {
	n := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			n += len(change.Value.Messages)
		}
	}
	return n
}
