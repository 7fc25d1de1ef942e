// Command automation runs the invoice automation once and exits, for use from an external
// scheduler. With -issue-token it prints a trigger token for the HTTP endpoint instead.
//
// Exit status is 0 when the run completed, even if individual invoices failed; 2 on a
// configuration error; 1 when the run could not start.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	automation "github.com/stockflow/backend/internal/application/invoicing"
	"github.com/stockflow/backend/internal/bootstrap"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/auth"
	"github.com/stockflow/backend/internal/infrastructure/config"
	"github.com/stockflow/backend/internal/infrastructure/logger"
	"github.com/stockflow/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

const (
	exitOK          = 0
	exitRunFailed   = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		issueToken   string
		tokenTTL     time.Duration
		printReport  bool
		withOutcomes bool
	)
	flag.StringVar(&issueToken, "issue-token", "", "Print a trigger token for this subject and exit")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of an issued trigger token")
	flag.BoolVar(&printReport, "report", true, "Print the run report as JSON on stdout")
	flag.BoolVar(&withOutcomes, "outcomes", false, "Include per-invoice outcomes in the printed report")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitConfigError
	}

	if issueToken != "" {
		return printToken(cfg, issueToken, tokenTTL)
	}

	log, err := logger.New(logger.ForEnvironment(cfg.App.Env, cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.App.Name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitConfigError
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := bootstrap.NewTelemetry(ctx, &cfg.Telemetry, log)
	if err != nil {
		log.Error("Failed to initialize telemetry", zap.Error(err))
		return exitConfigError
	}
	defer func() {
		// flush the run's metrics before exit
		_ = tel.Shutdown(context.Background())
	}()

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return exitRunFailed
	}
	defer db.Close()
	if err := db.EnsureSchema(); err != nil {
		log.Error("Failed to create schema", zap.Error(err))
		return exitRunFailed
	}
	if err := bootstrap.InstrumentDatabase(db.DB, cfg, log); err != nil {
		log.Error("Failed to enable database tracing", zap.Error(err))
		return exitConfigError
	}

	auto, err := bootstrap.NewAutomation(ctx, cfg, db.DB, tel.Meter(cfg.Telemetry.ServiceName), log)
	if err != nil {
		log.Error("Failed to initialize invoice automation", zap.Error(err))
		return exitConfigError
	}
	defer auto.Close()

	report, runErr := auto.Driver.Run(ctx)
	if printReport && report != nil {
		if err := writeReport(report, withOutcomes); err != nil {
			log.Warn("Failed to print run report", zap.Error(err))
		}
	}

	switch {
	case runErr == nil:
		return exitOK
	case errors.Is(runErr, invoicing.ErrNotificationNotConfigured):
		return exitConfigError
	default:
		log.Error("Automation run failed", zap.Error(runErr))
		return exitRunFailed
	}
}

func printToken(cfg *config.Config, subject string, ttl time.Duration) int {
	tokens := auth.NewTriggerTokenService(cfg.Automation.TriggerSecret, cfg.App.Name)
	if !tokens.Enabled() {
		fmt.Fprintln(os.Stderr, "automation.trigger_secret is not set")
		return exitConfigError
	}
	token, expiresAt, err := tokens.GenerateToken(subject, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		return exitConfigError
	}
	fmt.Fprintf(os.Stderr, "Token for %q expires at %s\n", subject, expiresAt.Format(time.RFC3339))
	fmt.Println(token)
	return exitOK
}

func writeReport(report *automation.RunReport, withOutcomes bool) error {
	if !withOutcomes {
		trimmed := *report
		trimmed.Outcomes = nil
		report = &trimmed
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
