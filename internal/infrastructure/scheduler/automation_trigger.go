package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	automation "github.com/stockflow/backend/internal/application/invoicing"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"go.uber.org/zap"
)

// Runner executes one automation run
type Runner interface {
	Run(ctx context.Context) (*automation.RunReport, error)
}

// AutomationTriggerConfig holds configuration for the automation trigger
type AutomationTriggerConfig struct {
	// Interval between scheduled runs
	Interval time.Duration

	// RunOnStart runs once immediately instead of waiting a full interval
	RunOnStart bool
}

// DefaultAutomationTriggerConfig returns default automation trigger configuration
func DefaultAutomationTriggerConfig() AutomationTriggerConfig {
	return AutomationTriggerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}
}

// Validate validates the configuration
func (c AutomationTriggerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// AutomationTrigger runs the invoice automation on a fixed interval. At most one run
// executes at a time within a process; ticks that arrive during a run are dropped.
type AutomationTrigger struct {
	config AutomationTriggerConfig
	runner Runner
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	runMu      sync.Mutex
	lastMu     sync.RWMutex
	lastReport *automation.RunReport
	lastErr    error
}

// NewAutomationTrigger creates a new automation trigger
func NewAutomationTrigger(config AutomationTriggerConfig, runner Runner, logger *zap.Logger) *AutomationTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutomationTrigger{
		config: config,
		runner: runner,
		logger: logger.Named("automation-trigger"),
	}
}

// Start starts the interval loop
func (t *AutomationTrigger) Start(ctx context.Context) error {
	if err := t.config.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Automation trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop stops the interval loop and waits for an in-flight run to return
func (t *AutomationTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Automation trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the interval loop is active
func (t *AutomationTrigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

// TriggerNow executes a run immediately. It returns ErrRunInProgress when a run is
// already executing in this process.
func (t *AutomationTrigger) TriggerNow(ctx context.Context) (*automation.RunReport, error) {
	if !t.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer t.runMu.Unlock()

	report, err := t.runner.Run(ctx)

	t.lastMu.Lock()
	t.lastReport = report
	t.lastErr = err
	t.lastMu.Unlock()

	return report, err
}

// LastRun returns the result of the most recent run, or nil when none has finished
func (t *AutomationTrigger) LastRun() (*automation.RunReport, error) {
	t.lastMu.RLock()
	defer t.lastMu.RUnlock()
	return t.lastReport, t.lastErr
}

func (t *AutomationTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.tick(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *AutomationTrigger) tick(ctx context.Context) {
	_, err := t.TriggerNow(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		t.logger.Info("Skipping scheduled run, previous run still executing")
	case errors.Is(err, invoicing.ErrNotificationNotConfigured):
		// already logged by the driver; retried on the next tick
	default:
		t.logger.Error("Scheduled automation run failed", zap.Error(err))
	}
}
