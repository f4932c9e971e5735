package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ath-alerts/internal/store"
)

// Controller enforces a minimum interval between notifications for the same
// asset, independent of how often detection runs. The marker lives in the
// store so overlapping invocations and process restarts share one gate.
type Controller struct {
	cooldowns store.CooldownStore
	interval  time.Duration
	logger    zerolog.Logger
}

// NewController constructs a frequency gate with the given cooldown interval.
func NewController(cooldowns store.CooldownStore, interval time.Duration, logger zerolog.Logger) *Controller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Controller{
		cooldowns: cooldowns,
		interval:  interval,
		logger:    logger.With().Str("component", "frequency_gate").Logger(),
	}
}

// ShouldNotify atomically claims the asset's cooldown marker. It returns false
// while a previous claim is still unexpired, so at most one dispatch per asset
// can happen per interval even when cycles overlap.
func (c *Controller) ShouldNotify(ctx context.Context, assetID string) (bool, error) {
	claimed, err := c.cooldowns.ClaimCooldown(ctx, assetID, c.interval)
	if err != nil {
		return false, err
	}
	if !claimed {
		c.logger.Debug().Str("asset", assetID).Msg("notification suppressed by cooldown")
	}
	return claimed, nil
}
