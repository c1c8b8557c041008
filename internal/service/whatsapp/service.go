package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/commands"
	client "github.com/mamadbah2/farmledger/pkg/clients/whatsapp"
)

// maxMessageLength is the WhatsApp Cloud API limit for a text body.
const maxMessageLength = 4096

// MessagingService describes the operations the HTTP layer and the scheduler can perform.
type MessagingService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, payload models.WebhookPayload) error
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// MetaWhatsAppService is the production implementation backed by WhatsApp Cloud API.
type MetaWhatsAppService struct {
	cfg        config.WhatsAppConfig
	client     client.Client
	dispatcher commands.Dispatcher
	allowed    map[string]bool
	logger     *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance.
func NewMetaWhatsAppService(cfg config.WhatsAppConfig, client client.Client, dispatcher commands.Dispatcher, logger *zap.Logger) *MetaWhatsAppService {
	svc := &MetaWhatsAppService{
		cfg:        cfg,
		client:     client,
		dispatcher: dispatcher,
		logger:     logger,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if len(cfg.AllowedSenders) > 0 {
		svc.allowed = make(map[string]bool, len(cfg.AllowedSenders))
		for _, sender := range cfg.AllowedSenders {
			svc.allowed[sender] = true
		}
	}
	return svc
}

// VerifyWebhookToken validates the callback verification token.
func (s *MetaWhatsAppService) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	if mode == "" || verifyToken == "" {
		return "", errors.New("missing mode or verify token")
	}

	if !strings.EqualFold(mode, "subscribe") {
		return "", fmt.Errorf("unsupported hub.mode %s", mode)
	}

	if verifyToken != s.cfg.VerifyToken {
		return "", errors.New("invalid verify token")
	}

	return challenge, nil
}

// HandleWebhook processes inbound webhook payloads.
func (s *MetaWhatsAppService) HandleWebhook(ctx context.Context, payload models.WebhookPayload) error {
	var firstErr error

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if err := s.handleInboundMessage(ctx, msg); err != nil {
					s.logger.Error("failed to handle inbound message", zap.Error(err), zap.String("message_id", msg.ID))
					if firstErr == nil {
						firstErr = err
					}
				}
			}
		}
	}

	return firstErr
}

func (s *MetaWhatsAppService) handleInboundMessage(ctx context.Context, msg models.InboundMessage) error {
	if s.allowed != nil && !s.allowed[msg.From] {
		s.logger.Warn("ignoring message from unknown sender", zap.String("from", msg.From))
		return nil
	}

	text := msg.Body()
	if text == "" {
		s.logger.Debug("ignoring message without text", zap.String("type", msg.Type), zap.String("message_id", msg.ID))
		return nil
	}

	cmd := models.ParseCommand(text)
	s.logger.Info("parsed inbound command",
		zap.String("from", msg.From),
		zap.String("command", string(cmd.Type)),
		zap.Strings("args", cmd.Args))

	reply, err := s.dispatcher.HandleCommand(ctx, cmd, msg.From)
	switch {
	case err == nil:
	case errors.Is(err, commands.ErrUnsupportedCommand):
		reply = "Unknown command.\n" + commands.HelpMessage()
	case models.IsValidation(err):
		reply = "Cannot answer: " + err.Error()
	default:
		s.logger.Error("command failed", zap.String("command", string(cmd.Type)), zap.Error(err))
		reply = "Sorry, the report could not be computed right now."
	}

	return s.SendOutbound(ctx, models.OutboundMessageRequest{To: msg.From, Message: reply})
}

// SendOutbound pushes a text message, splitting bodies longer than the API limit.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	for _, part := range chunkMessage(req.Message, maxMessageLength) {
		ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := s.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
			To:         req.To,
			Body:       part,
			PreviewURL: req.PreviewURL,
		})
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// chunkMessage splits body into parts of at most limit bytes, breaking on line
// boundaries when possible.
func chunkMessage(body string, limit int) []string {
	if len(body) <= limit {
		return []string{body}
	}

	var parts []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(body, "\n") {
		for len(line) > limit {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			parts = append(parts, line[:limit])
			line = line[limit:]
		}
		if current.Len()+len(line) > limit {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
