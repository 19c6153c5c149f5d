package selfroles

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"wysibot/dal"
)

// Janitor purges expired cooldowns on each tick until ctx is cancelled.
// Expired rows are inert, so this only keeps the table small.
func Janitor(ctx context.Context, db *gorm.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopped cooldown janitor.")
			return
		case <-ticker.C:
			n, err := dal.PurgeExpiredCooldowns(ctx, time.Now(), db)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to purge expired cooldowns.")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("Purged expired cooldowns.")
			}
		}
	}
}
