package jobs

import (
	"context"
	"fmt"
	"time"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-autopost/core"
)

const JobIDExpiryAudit = "autopost.expiry.audit"

const (
	defaultWarnWindow = 7 * 24 * time.Hour
	defaultAuditLimit = 100
)

// Notifier receives each flagged account so hosts can send warning
// emails or surface banners. The runner itself only observes.
type Notifier func(ctx context.Context, account core.Account)

// ExpiryAuditRunner sweeps active accounts whose token expiry falls
// inside the warning window and reports them through logs and metrics.
// It never refreshes tokens and never writes records.
type ExpiryAuditRunner struct {
	store      core.AccountStore
	logger     core.Logger
	metrics    core.MetricsRecorder
	notifier   Notifier
	warnWindow time.Duration
	limit      int
	clock      func() time.Time
}

type RunnerOption func(*ExpiryAuditRunner)

func WithLogger(logger core.Logger) RunnerOption {
	return func(r *ExpiryAuditRunner) {
		r.logger = logger
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) RunnerOption {
	return func(r *ExpiryAuditRunner) {
		r.metrics = metrics
	}
}

func WithWarnWindow(window time.Duration) RunnerOption {
	return func(r *ExpiryAuditRunner) {
		r.warnWindow = window
	}
}

func WithLimit(limit int) RunnerOption {
	return func(r *ExpiryAuditRunner) {
		r.limit = limit
	}
}

func WithNotifier(notifier Notifier) RunnerOption {
	return func(r *ExpiryAuditRunner) {
		r.notifier = notifier
	}
}

func WithClock(clock func() time.Time) RunnerOption {
	return func(r *ExpiryAuditRunner) {
		r.clock = clock
	}
}

func NewExpiryAuditRunner(store core.AccountStore, options ...RunnerOption) (*ExpiryAuditRunner, error) {
	if store == nil {
		return nil, fmt.Errorf("jobs: account store is required")
	}
	runner := &ExpiryAuditRunner{
		store:      store,
		logger:     glog.Ensure(nil),
		metrics:    core.NopMetricsRecorder{},
		warnWindow: defaultWarnWindow,
		limit:      defaultAuditLimit,
		clock:      time.Now,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(runner)
	}
	runner.logger = glog.Ensure(runner.logger)
	if runner.metrics == nil {
		runner.metrics = core.NopMetricsRecorder{}
	}
	if runner.warnWindow <= 0 {
		runner.warnWindow = defaultWarnWindow
	}
	if runner.limit <= 0 {
		runner.limit = defaultAuditLimit
	}
	if runner.clock == nil {
		runner.clock = time.Now
	}
	return runner, nil
}

// Report summarizes one sweep.
type Report struct {
	CheckedAt time.Time
	Window    time.Duration
	Flagged   []core.Account
}

// Run performs one sweep. Accounts come back from the store without
// sealed token material, so nothing secret ever reaches the log fields.
func (r *ExpiryAuditRunner) Run(ctx context.Context) (Report, error) {
	if r == nil || r.store == nil {
		return Report{}, fmt.Errorf("jobs: expiry audit runner is not configured")
	}

	now := r.clock().UTC()
	before := now.Add(r.warnWindow)
	accounts, err := r.store.ListExpiring(ctx, before, r.limit)
	if err != nil {
		r.logger.Error("expiry audit sweep failed", "error", err)
		return Report{}, fmt.Errorf("jobs: list expiring accounts: %w", err)
	}

	for _, account := range accounts {
		expiresIn := account.TokenExpiry.Sub(now)
		r.logger.Warn("token approaching expiry",
			"email", account.Email,
			"token_expiry", account.TokenExpiry,
			"expires_in", expiresIn.String(),
			"active_page_id", account.ActivePageID,
		)
		if r.notifier != nil {
			r.notifier(ctx, account)
		}
	}

	tags := map[string]string{"job_id": JobIDExpiryAudit}
	r.metrics.IncCounter(ctx, "autopost.expiry_audit.runs.total", 1, tags)
	r.metrics.IncCounter(ctx, "autopost.expiry_audit.flagged.total", int64(len(accounts)), tags)

	return Report{
		CheckedAt: now,
		Window:    r.warnWindow,
		Flagged:   accounts,
	}, nil
}

// Handle adapts the runner to a go-job execution message. Parameters may
// override warn_window (duration string) and limit for one sweep.
func (r *ExpiryAuditRunner) Handle(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg != nil {
		if raw, ok := msg.Parameters["warn_window"].(string); ok && raw != "" {
			if window, err := time.ParseDuration(raw); err == nil && window > 0 {
				override := *r
				override.warnWindow = window
				r = &override
			}
		}
		if limit, ok := msg.Parameters["limit"].(int); ok && limit > 0 {
			override := *r
			override.limit = limit
			r = &override
		}
	}
	_, err := r.Run(ctx)
	return err
}

// NewExecutionMessage builds the go-job message hosts enqueue to trigger
// a sweep on their queue infrastructure.
func NewExecutionMessage(idempotencyKey string) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDExpiryAudit,
		IdempotencyKey: idempotencyKey,
		Parameters:     map[string]any{},
	}
}

// JobLogger bridges the resolved glog logger into the go-job logging
// contract.
func JobLogger(logger core.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}
