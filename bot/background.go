package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"wysibot/selfroles"
)

// Run drives the reminder scheduler and the cooldown janitor until ctx is
// cancelled, then waits for both to stop.
func (bot *Bot) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		bot.scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		selfroles.Janitor(ctx, bot.db, bot.cfg.CooldownPurgeInterval)
	}()

	log.Info().
		Dur("poll_interval", bot.cfg.PollInterval).
		Dur("purge_interval", bot.cfg.CooldownPurgeInterval).
		Msg("Started background loops.")
	wg.Wait()
	log.Info().Msg("Stopped background loops.")
}
