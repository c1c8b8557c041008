package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/repository/mongodb"
	"github.com/mamadbah2/farmledger/internal/repository/sheets"
	"github.com/mamadbah2/farmledger/internal/repository/sqlite"
	"github.com/mamadbah2/farmledger/internal/scheduler"
	"github.com/mamadbah2/farmledger/internal/server/handlers"
	"github.com/mamadbah2/farmledger/internal/server/router"
	commandsvc "github.com/mamadbah2/farmledger/internal/service/commands"
	importersvc "github.com/mamadbah2/farmledger/internal/service/importer"
	"github.com/mamadbah2/farmledger/internal/service/reconciliation"
	recordssvc "github.com/mamadbah2/farmledger/internal/service/records"
	reportingsvc "github.com/mamadbah2/farmledger/internal/service/reporting"
	"github.com/mamadbah2/farmledger/internal/service/splitting"
	whatsappsvc "github.com/mamadbah2/farmledger/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/farmledger/pkg/clients/whatsapp"
	"github.com/mamadbah2/farmledger/pkg/logger"
)

// storage is everything the services need from a backend.
type storage interface {
	reconciliation.Source
	splitting.Store
	recordssvc.Store
	importersvc.Store
	reportingsvc.SnapshotStore
	handlers.Ledger
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		baseLogger.Fatal("failed to init store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			baseLogger.Error("failed to close store", zap.Error(err))
		}
	}()
	baseLogger.Info("store ready", zap.String("driver", cfg.Store.Driver))

	loc, err := cfg.Reporting.Location()
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.String("timezone", cfg.Reporting.Timezone), zap.Error(err))
	}

	classifier := reconciliation.NewClassifier(nil)
	if cfg.Finance.CategoryAliasesFile != "" {
		classifier, err = reconciliation.LoadClassifier(cfg.Finance.CategoryAliasesFile)
		if err != nil {
			baseLogger.Fatal("failed to load category aliases", zap.String("file", cfg.Finance.CategoryAliasesFile), zap.Error(err))
		}
	}

	resolver := reconciliation.NewPeriodResolver(nil, loc)
	pricing := reconciliation.EggPricing{TrayPrice: cfg.Finance.EggTrayPrice, EggsPerTray: cfg.Finance.EggsPerTray}
	decimals := reportingsvc.CurrencyDecimals(cfg.Finance.CurrencyCode)
	reconSvc := reconciliation.NewService(store, resolver, classifier, pricing, logger.Named(baseLogger, "svc.reconciliation")).
		WithCurrencyDecimals(decimals)
	splitSvc := splitting.NewService(store, reconSvc, decimals, logger.Named(baseLogger, "svc.splitting"))
	recordSvc := recordssvc.NewService(store, logger.Named(baseLogger, "svc.records"))

	formatter := reportingsvc.NewFormatter(cfg.Finance.CurrencyCode, loc)
	reportingSvc := reportingsvc.NewService(reconSvc, store, formatter, logger.Named(baseLogger, "svc.reporting"))
	commandDispatcher := commandsvc.NewService(reconSvc, formatter, logger.Named(baseLogger, "svc.commands"))

	var imp *importersvc.Service
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, logger.Named(baseLogger, "repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		imp = importersvc.NewService(sheetsRepo, store, loc, logger.Named(baseLogger, "svc.importer"))
		reportingSvc.WithExporter(sheetsRepo)
	} else {
		baseLogger.Warn("google sheets not configured, sheet import disabled")
	}

	var (
		messagingSvc   *whatsappsvc.MetaWhatsAppService
		webhookHandler *handlers.WebhookHandler
	)
	if cfg.WhatsApp.Enabled() {
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		messagingSvc = whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, commandDispatcher, logger.Named(baseLogger, "svc.whatsapp"))
		webhookHandler = handlers.NewWebhookHandler(messagingSvc, logger.Named(baseLogger, "handlers"))
	} else {
		baseLogger.Warn("whatsapp credentials missing, messaging disabled")
	}

	var runner handlers.ImportRunner
	if imp != nil {
		runner = imp
	}
	financeHandler := handlers.NewFinanceHandler(reconSvc, splitSvc, recordSvc, store, runner, logger.Named(baseLogger, "handlers.finance"))
	engine := router.New(financeHandler, webhookHandler, logger.Named(baseLogger, "router"))

	var (
		sender   scheduler.Sender
		importer scheduler.Importer
	)
	if messagingSvc != nil {
		sender = messagingSvc
	}
	if imp != nil {
		importer = imp
	}
	sched := scheduler.NewScheduler(*cfg, reportingSvc, sender, importer, loc, logger.Named(baseLogger, "scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		})(engine),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config) (storage, func() error, error) {
	switch cfg.Store.Driver {
	case config.DriverMongoDB:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		repo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() error { return repo.Close(context.Background()) }, nil
	default:
		store, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}
