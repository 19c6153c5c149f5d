package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"wysibot/clock"
	"wysibot/dal"
	"wysibot/discordutils"
	"wysibot/metrics"
	"wysibot/models"
)

// Messenger delivers rendered reminders.
type Messenger interface {
	SendChannelMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error
	SendDirectMessage(ctx context.Context, userID string, msg *discordgo.MessageSend) error
}

// Outcome is the aggregate result of one execution.
type Outcome struct {
	Status models.LogStatus
	// Err describes what went wrong for error and partial outcomes.
	Err          error
	Notified     int
	Unsubscribed int
}

// Executor sends a reminder to its channel and to its DM subscribers.
type Executor struct {
	db          *gorm.DB
	messenger   Messenger
	concurrency int
	now         func() time.Time
}

// NewExecutor returns an Executor sending at most concurrency DMs at once.
func NewExecutor(db *gorm.DB, messenger Messenger, concurrency int) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		db:          db,
		messenger:   messenger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Execute delivers cfg once. A failed channel send makes the outcome an
// error; DMs are still attempted since subscribers asked for them. Failed
// DMs turn a successful channel send into a partial outcome.
func (e *Executor) Execute(ctx context.Context, cfg *models.ReminderConfig) Outcome {
	logger := log.With().
		Uint("config_id", cfg.ID).
		Str("guild_id", cfg.GuildID).
		Logger()

	channelErr := e.messenger.SendChannelMessage(ctx, cfg.ChannelID, Render(cfg))
	if channelErr != nil {
		logger.Error().Err(channelErr).Str("channel_id", cfg.ChannelID).Msg("Failed to send reminder to channel.")
	}

	fan := e.fanOut(ctx, cfg)

	out := Outcome{
		Status:       models.StatusSuccess,
		Notified:     fan.sent,
		Unsubscribed: fan.unsubscribed,
	}
	switch {
	case channelErr != nil:
		out.Status = models.StatusError
		out.Err = fmt.Errorf("send to channel %s: %w", cfg.ChannelID, channelErr)
	case fan.err != nil:
		out.Status = models.StatusPartial
		out.Err = fan.err
	}
	return out
}

type fanOutResult struct {
	sent         int
	unsubscribed int
	err          error
}

func (e *Executor) fanOut(ctx context.Context, cfg *models.ReminderConfig) fanOutResult {
	logger := log.With().Uint("config_id", cfg.ID).Logger()

	subs, err := dal.ListSubscriptions(ctx, cfg.ID, e.db)
	if err != nil {
		return fanOutResult{err: fmt.Errorf("list subscriptions: %w", err)}
	}
	if len(subs) == 0 {
		return fanOutResult{}
	}

	userIDs := make([]string, len(subs))
	for i, s := range subs {
		userIDs[i] = s.UserID
	}
	settings, err := dal.GetUserSettingsFor(ctx, userIDs, e.db)
	if err != nil {
		return fanOutResult{err: fmt.Errorf("load user settings: %w", err)}
	}

	now := e.now()
	next, err := NextTrigger(cfg, now)
	if err != nil {
		next = time.Time{}
	}

	var (
		mu     sync.Mutex
		result fanOutResult
		failed []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, userID := range userIDs {
		userID := userID
		s := settings[userID]
		if !s.DMRemindersEnabled {
			continue
		}
		loc, err := clock.LoadLocation(s.Timezone)
		if err != nil {
			loc = time.UTC
		}
		msg := RenderDirect(cfg, next, loc, now)

		g.Go(func() error {
			err := e.messenger.SendDirectMessage(gctx, userID, msg)
			unsubscribed := false
			switch {
			case err == nil:
				metrics.ReminderDMs.WithLabelValues("sent").Inc()
			case errors.Is(err, discordutils.ErrUnreachable):
				metrics.ReminderDMs.WithLabelValues("unreachable").Inc()
				logger.Info().Err(err).Str("user_id", userID).Msg("Subscriber unreachable, unsubscribing.")
				// The unsubscribe must happen even when the fan-out is cut short.
				removed, uerr := dal.Unsubscribe(context.WithoutCancel(gctx), userID, cfg.ID, e.db)
				if uerr != nil {
					logger.Error().Err(uerr).Str("user_id", userID).Msg("Failed to remove subscription.")
				}
				unsubscribed = removed
			default:
				metrics.ReminderDMs.WithLabelValues("failed").Inc()
				logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to send reminder DM.")
			}

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				result.sent++
			} else {
				failed = append(failed, fmt.Errorf("user %s: %w", userID, err))
			}
			if unsubscribed {
				result.unsubscribed++
			}
			// DM failures are independent; never cancel the rest.
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		result.err = fmt.Errorf("%d of %d direct messages failed: %w",
			len(failed), len(failed)+result.sent, errors.Join(failed...))
	}
	return result
}
