package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/importer"
)

// ReportGenerator renders the periodic farm report.
type ReportGenerator interface {
	GenerateWeeklyReport(ctx context.Context) (string, error)
}

// Sender delivers a text message.
type Sender interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// Importer pulls the sheet journal into the store.
type Importer interface {
	Run(ctx context.Context) (importer.Report, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	reports  ReportGenerator
	sender   Sender
	importer Importer
	cfg      config.Config
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance. sender and imp may be nil
// when messaging or the sheet import is disabled; the matching jobs are then
// not registered. Schedules are evaluated in loc.
func NewScheduler(cfg config.Config, reports ReportGenerator, sender Sender, imp Importer, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)

	return &Scheduler{
		cron:     c,
		reports:  reports,
		sender:   sender,
		importer: imp,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start registers the enabled jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.sender != nil && len(s.cfg.WhatsApp.ReportRecipients) > 0 {
		if _, err := s.cron.AddFunc(s.cfg.Reporting.CronSchedule, s.sendWeeklyReport); err != nil {
			return err
		}
		s.logger.Info("weekly report scheduled", zap.String("schedule", s.cfg.Reporting.CronSchedule))
	}

	if s.importer != nil && s.cfg.Reporting.ImportCronSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.Reporting.ImportCronSchedule, s.runImport); err != nil {
			return err
		}
		s.logger.Info("sheet import scheduled", zap.String("schedule", s.cfg.Reporting.ImportCronSchedule))
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sendWeeklyReport() {
	s.logger.Info("generating weekly report")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := s.reports.GenerateWeeklyReport(ctx)
	if err != nil {
		s.logger.Error("failed to generate weekly report", zap.Error(err))
		return
	}

	for _, recipient := range s.cfg.WhatsApp.ReportRecipients {
		req := models.OutboundMessageRequest{To: recipient, Message: report}
		if err := s.sender.SendOutbound(ctx, req); err != nil {
			s.logger.Error("failed to send weekly report", zap.String("to", recipient), zap.Error(err))
			continue
		}
		s.logger.Info("weekly report sent", zap.String("to", recipient))
	}
}

func (s *Scheduler) runImport() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := s.importer.Run(ctx)
	if err != nil {
		s.logger.Error("sheet import failed", zap.Error(err))
		return
	}
	s.logger.Info("sheet import finished",
		zap.Int("imported", report.Imported()),
		zap.Int("skipped", report.Skipped()))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
