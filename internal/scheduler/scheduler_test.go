package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/importer"
)

type staticReport struct {
	text string
	err  error
}

func (r staticReport) GenerateWeeklyReport(context.Context) (string, error) {
	return r.text, r.err
}

type outbox struct {
	sent    []models.OutboundMessageRequest
	failFor string
}

func (o *outbox) SendOutbound(_ context.Context, req models.OutboundMessageRequest) error {
	o.sent = append(o.sent, req)
	if req.To == o.failFor {
		return errors.New("recipient unreachable")
	}
	return nil
}

type countingImporter struct {
	runs int
}

func (c *countingImporter) Run(context.Context) (importer.Report, error) {
	c.runs++
	return importer.Report{Tabs: []importer.TabResult{{Imported: 3}}}, nil
}

func testConfig(recipients ...string) config.Config {
	return config.Config{
		WhatsApp:  config.WhatsAppConfig{ReportRecipients: recipients},
		Reporting: config.ReportingConfig{CronSchedule: "0 20 * * 5", ImportCronSchedule: "0 * * * *"},
	}
}

func TestSendWeeklyReport_ContinuesAfterFailedRecipient(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	box := &outbox{failFor: "224600000001"}
	s := NewScheduler(testConfig("224600000001", "224600000002"), staticReport{text: "*Farm summary*"}, box, nil, time.UTC, zap.New(core))

	s.sendWeeklyReport()

	require.Len(t, box.sent, 2)
	assert.Equal(t, "*Farm summary*", box.sent[1].Message)
	assert.Equal(t, 1, logs.FilterMessage("failed to send weekly report").Len())
	assert.Equal(t, 1, logs.FilterMessage("weekly report sent").Len())
}

func TestSendWeeklyReport_GenerationFailureSendsNothing(t *testing.T) {
	box := &outbox{}
	s := NewScheduler(testConfig("224600000001"), staticReport{err: errors.New("store offline")}, box, nil, nil, nil)

	s.sendWeeklyReport()
	assert.Empty(t, box.sent)
}

func TestStart_RegistersEnabledJobs(t *testing.T) {
	imp := &countingImporter{}
	s := NewScheduler(testConfig("224600000001"), staticReport{}, &outbox{}, imp, time.UTC, nil)

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Len(t, s.cron.Entries(), 2)

	idle := NewScheduler(testConfig(), staticReport{}, nil, nil, time.UTC, nil)
	require.NoError(t, idle.Start())
	defer idle.Stop()
	assert.Empty(t, idle.cron.Entries())
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	cfg := testConfig("224600000001")
	cfg.Reporting.CronSchedule = "every friday"
	s := NewScheduler(cfg, staticReport{}, &outbox{}, nil, time.UTC, nil)

	assert.Error(t, s.Start())
}

func TestRunImport_LogsCounts(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	imp := &countingImporter{}
	s := NewScheduler(testConfig(), staticReport{}, nil, imp, time.UTC, zap.New(core))

	s.runImport()

	assert.Equal(t, 1, imp.runs)
	entries := logs.FilterMessage("sheet import finished").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 3, entries[0].ContextMap()["imported"])
}
