package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

type fakeMessaging struct {
	payloads []models.WebhookPayload
	outbound []models.OutboundMessageRequest
	err      error
}

func (f *fakeMessaging) VerifyWebhookToken(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || token != "secret" {
		return "", errors.New("invalid verify token")
	}
	return challenge, nil
}

func (f *fakeMessaging) HandleWebhook(_ context.Context, payload models.WebhookPayload) error {
	f.payloads = append(f.payloads, payload)
	return f.err
}

func (f *fakeMessaging) SendOutbound(_ context.Context, req models.OutboundMessageRequest) error {
	f.outbound = append(f.outbound, req)
	return f.err
}

func webhookEngine(svc *fakeMessaging) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler(svc, nil)
	r := gin.New()
	r.GET("/webhook", h.Verify)
	r.POST("/webhook", h.Receive)
	r.POST("/messages", h.SendMessage)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const inboundSummary = `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"messages":[{"from":"224600000001","id":"wamid.1","type":"text","text":{"body":"/summary 7d"}}]}}]}]}`

func TestVerify(t *testing.T) {
	r := webhookEngine(&fakeMessaging{})

	rec := serve(r, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=1158201444", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1158201444", rec.Body.String())

	rec = serve(r, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReceive(t *testing.T) {
	svc := &fakeMessaging{}
	r := webhookEngine(svc)

	rec := serve(r, http.MethodPost, "/webhook", inboundSummary)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.payloads, 1)
	msg := svc.payloads[0].Entry[0].Changes[0].Value.Messages[0]
	assert.Equal(t, "/summary 7d", msg.Body())
}

func TestReceive_AcknowledgesFailedReplies(t *testing.T) {
	svc := &fakeMessaging{err: errors.New("rate limited")}
	r := webhookEngine(svc)

	rec := serve(r, http.MethodPost, "/webhook", inboundSummary)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, svc.payloads, 1)
}

func TestReceive_IgnoresOtherObjectsAndRejectsGarbage(t *testing.T) {
	svc := &fakeMessaging{}
	r := webhookEngine(svc)

	rec := serve(r, http.MethodPost, "/webhook", `{"object":"page","entry":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.payloads)

	rec = serve(r, http.MethodPost, "/webhook", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage(t *testing.T) {
	svc := &fakeMessaging{}
	r := webhookEngine(svc)

	rec := serve(r, http.MethodPost, "/messages", `{"to":"224600000001","message":"Weekly report ready"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, svc.outbound, 1)
	assert.Equal(t, "224600000001", svc.outbound[0].To)

	rec = serve(r, http.MethodPost, "/messages", `{"to":"224600000001"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPost, "/messages", `{"to":"224600000001","message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = errors.New("token expired")
	rec = serve(r, http.MethodPost, "/messages", `{"to":"224600000001","message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCountMessages(t *testing.T) {
	payload := models.WebhookPayload{Entry: []models.WebhookEntry{
		{Changes: []models.WebhookChange{{Value: models.WebhookValue{Messages: make([]models.InboundMessage, 2)}}}},
		{Changes: []models.WebhookChange{{}, {Value: models.WebhookValue{Messages: make([]models.InboundMessage, 1)}}}},
	}}
	assert.Equal(t, 3, countMessages(payload))
}
