package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SchedulerConfig is the retry policy of the scheduled publication job.
type SchedulerConfig struct {
	// Spec is a cron expression with a leading seconds field.
	Spec        string
	MaxAttempts int
	BaseBackoff time.Duration
	// Expiry caps the time spent on one post across all attempts.
	Expiry time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Spec:        "0 * * * * *",
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		Expiry:      time.Minute,
	}
}

func (c SchedulerConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("publish: MaxAttempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseBackoff < 0 || c.Expiry <= 0 {
		return errors.New("publish: BaseBackoff must not be negative and Expiry must be positive")
	}
	if _, err := cron.NewParser(cronFields).Parse(c.Spec); err != nil {
		return fmt.Errorf("publish: invalid schedule %q: %w", c.Spec, err)
	}
	return nil
}

const cronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// RunReport summarizes one run of the job.
type RunReport struct {
	RunID     string
	Due       int
	Published int
	// Failed lists the posts given up on after the last attempt or expiry.
	Failed []int64
}

// Scheduler publishes due posts on a cron schedule. Runs never overlap.
type Scheduler struct {
	publisher *Publisher
	cfg       SchedulerConfig
	logger    *zap.Logger
	cron      *cron.Cron
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	started bool
}

func NewScheduler(publisher *Publisher, cfg SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")

	cl := cronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       publisher.now,
		sleep:     sleepCtx,
		cron: cron.New(
			cron.WithParser(cron.NewParser(cronFields)),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if _, err := s.cron.AddFunc(cfg.Spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("publish: register job: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.logger.Info("scheduler started", zap.String("spec", s.cfg.Spec))
	s.cron.Start()
}

// Stop waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce publishes every due post, retrying each failure with doubling
// backoff until MaxAttempts or Expiry is reached.
func (s *Scheduler) RunOnce(ctx context.Context) RunReport {
	report := RunReport{RunID: uuid.NewString()}
	logger := s.logger.With(zap.String("run_id", report.RunID))

	now := s.now()
	ids, err := s.publisher.DueIDs(ctx, now)
	if err != nil {
		logger.Error("listing due posts failed", zap.Error(err))
		return report
	}
	report.Due = len(ids)

	for _, id := range ids {
		published, err := s.publishWithRetry(ctx, logger, id, now)
		switch {
		case err != nil:
			report.Failed = append(report.Failed, id)
			logger.Warn("giving up on scheduled post", zap.Int64("post_id", id), zap.Error(err))
		case published:
			report.Published++
		}
	}

	if report.Due > 0 {
		logger.Info("scheduled run finished",
			zap.Int("due", report.Due),
			zap.Int("published", report.Published),
			zap.Int("failed", len(report.Failed)),
		)
	}
	return report
}

func (s *Scheduler) publishWithRetry(ctx context.Context, logger *zap.Logger, id int64, now time.Time) (bool, error) {
	deadline := time.Now().Add(s.cfg.Expiry)
	backoff := s.cfg.BaseBackoff

	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		var published bool
		published, err = s.publisher.PublishScheduled(ctx, id, now)
		if err == nil {
			return published, nil
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}
		if time.Now().Add(backoff).After(deadline) {
			return false, fmt.Errorf("expired after %d attempts: %w", attempt, err)
		}

		logger.Debug("retrying scheduled post",
			zap.Int64("post_id", id),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if serr := s.sleep(ctx, backoff); serr != nil {
			return false, serr
		}
		backoff *= 2
	}
	return false, fmt.Errorf("failed after %d attempts: %w", s.cfg.MaxAttempts, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
