package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"wysibot/dal"
	"wysibot/metrics"
	"wysibot/models"
)

// Runner executes one reminder. *Executor is the production Runner.
type Runner interface {
	Execute(ctx context.Context, cfg *models.ReminderConfig) Outcome
}

// Scheduler fires due reminders. All due-state lives in the store, so any
// number of schedulers may poll the same database.
type Scheduler struct {
	db       *gorm.DB
	runner   Runner
	interval time.Duration
	now      func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the poll interval. The default is one minute.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces the time source used by Run.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler returns a Scheduler handing due configs to runner.
func NewScheduler(db *gorm.DB, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:       db,
		runner:   runner,
		interval: time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Started reminder scheduler.")
	for {
		if err := s.Tick(ctx, s.now()); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Reminder tick failed.")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopped reminder scheduler.")
			return
		case <-ticker.C:
		}
	}
}

// Tick fires every enabled reminder due at or before now, once per due
// instant, and waits for those executions to finish. Executions are not
// cancelled with ctx.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	configs, err := dal.ListEnabledReminderConfigs(ctx, s.db)
	if err != nil {
		return fmt.Errorf("list enabled reminders: %w", err)
	}

	var wg sync.WaitGroup
	for i := range configs {
		cfg := &configs[i]
		if cfg.ReminderType == models.ReminderCustom {
			continue
		}
		runID, due, ok := s.claim(ctx, cfg, now.UTC())
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.execute(context.WithoutCancel(ctx), runID, cfg, models.TriggerScheduled, &due)
		}()
	}
	wg.Wait()
	return nil
}

// claim caches a missing next due instant, or claims a passed one. It
// reports the due instant the caller now owns and the run ID its pending
// log entry was written under.
func (s *Scheduler) claim(ctx context.Context, cfg *models.ReminderConfig, now time.Time) (string, time.Time, bool) {
	logger := log.With().Uint("config_id", cfg.ID).Str("guild_id", cfg.GuildID).Logger()

	if cfg.NextTriggerAt == nil {
		// A fresh or edited config starts from now; past instants of an old
		// schedule are not replayed.
		ref := now
		if cfg.LastTriggeredAt != nil && cfg.LastTriggeredAt.After(ref) {
			ref = *cfg.LastTriggeredAt
		}
		next, err := NextTrigger(cfg, ref)
		if err != nil {
			logger.Error().Err(err).Msg("Cannot schedule reminder.")
			return "", time.Time{}, false
		}
		if _, err := dal.CacheNextTrigger(ctx, cfg.ID, next, s.db); err != nil {
			logger.Error().Err(err).Msg("Failed to store next trigger.")
			return "", time.Time{}, false
		}
		logger.Debug().Time("next_trigger_at", next).Msg("Scheduled reminder.")
		return "", time.Time{}, false
	}

	due := cfg.NextTriggerAt.UTC()
	if due.After(now) {
		return "", time.Time{}, false
	}

	// Skip every instant missed while the bot was down except this one.
	next, err := NextTrigger(cfg, now)
	if err != nil {
		logger.Error().Err(err).Msg("Cannot schedule reminder.")
		return "", time.Time{}, false
	}
	runID := uuid.NewString()
	ok, err := dal.ClaimDueInstant(ctx, cfg.ID, due, next, runID, s.db)
	if err != nil {
		logger.Error().Err(err).Time("due_at", due).Msg("Failed to claim reminder.")
		return "", time.Time{}, false
	}
	if !ok {
		logger.Debug().Time("due_at", due).Msg("Reminder already claimed.")
	}
	return runID, due, ok
}

// TriggerNow executes a reminder immediately without touching its schedule.
func (s *Scheduler) TriggerNow(ctx context.Context, configID uint) (Outcome, error) {
	cfg, err := dal.GetReminderConfig(ctx, configID, s.db)
	if errors.Is(err, dal.ErrNotFound) {
		return Outcome{}, ErrConfigNotFound
	}
	if err != nil {
		return Outcome{}, err
	}
	return s.execute(context.WithoutCancel(ctx), uuid.NewString(), cfg, models.TriggerManual, nil), nil
}

func (s *Scheduler) execute(
	ctx context.Context,
	runID string,
	cfg *models.ReminderConfig,
	trigger models.Trigger,
	due *time.Time,
) (out Outcome) {
	logger := log.With().
		Uint("config_id", cfg.ID).
		Str("guild_id", cfg.GuildID).
		Str("run_id", runID).
		Str("trigger", string(trigger)).
		Logger()
	if due != nil {
		logger = logger.With().Time("due_at", *due).Logger()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Reminder execution panicked.")
			out = Outcome{Status: models.StatusError, Err: fmt.Errorf("panic: %v", r)}
		}
		s.record(ctx, logger, runID, cfg.ID, trigger, due, out)
	}()

	logger.Info().Msg("Firing reminder.")
	return s.runner.Execute(ctx, cfg)
}

func (s *Scheduler) record(
	ctx context.Context,
	logger zerolog.Logger,
	runID string,
	configID uint,
	trigger models.Trigger,
	due *time.Time,
	out Outcome,
) {
	if out.Status == "" {
		out.Status = models.StatusError
		out.Err = errors.Join(errors.New("execution reported no status"), out.Err)
	}
	metrics.ReminderExecutions.WithLabelValues(string(trigger), string(out.Status)).Inc()

	entry := &models.ReminderLog{
		RunID:         runID,
		ConfigID:      configID,
		TriggeredBy:   trigger,
		DueAt:         due,
		ExecutedAt:    time.Now().UTC(),
		Status:        out.Status,
		UsersNotified: out.Notified,
	}
	if out.Err != nil {
		msg := out.Err.Error()
		entry.ErrorMessage = &msg
	}

	event := logger.Info()
	if out.Status != models.StatusSuccess {
		event = logger.Warn().Err(out.Err)
	}
	event.Str("status", string(out.Status)).
		Int("notified", out.Notified).
		Int("unsubscribed", out.Unsubscribed).
		Msg("Reminder executed.")

	if due != nil {
		// Scheduled runs complete the entry written when they were claimed.
		err := dal.CompleteReminderLog(ctx, runID, entry.Status, entry.ErrorMessage, entry.UsersNotified, entry.ExecutedAt, s.db)
		if err == nil {
			return
		}
		if !errors.Is(err, dal.ErrNotFound) {
			logger.Error().Err(err).Msg("Failed to record reminder execution.")
			return
		}
	}
	if err := dal.InsertReminderLog(ctx, entry, s.db); err != nil {
		logger.Error().Err(err).Msg("Failed to record reminder execution.")
	}
}
