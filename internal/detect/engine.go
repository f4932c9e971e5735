package detect

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ath-alerts/internal/feed"
	"ath-alerts/internal/store"
)

// Engine reconciles feed observations against stored snapshots and decides
// whether a notifiable ATH crossing occurred. The stored ATH is monotonic: a
// reconcile pass only ever raises it.
type Engine struct {
	snapshots store.SnapshotStore
	maxRatio  decimal.Decimal
	logger    zerolog.Logger
	nowFn     func() time.Time
}

// NewEngine constructs a detection engine. maxRatio guards the missed-ATH path
// against corrupted feed values: a reported ATH more than maxRatio times the
// current price is treated as noise.
func NewEngine(snapshots store.SnapshotStore, maxRatio float64, logger zerolog.Logger) *Engine {
	if maxRatio <= 1 {
		maxRatio = 10
	}
	return &Engine{
		snapshots: snapshots,
		maxRatio:  decimal.NewFromFloat(maxRatio),
		logger:    logger.With().Str("component", "detection_engine").Logger(),
		nowFn:     time.Now,
	}
}

// Reconcile processes one cycle of observations. Assets are independent: a
// store failure voids that asset's event and the pass continues. The returned
// events all have their snapshot writes committed.
func (e *Engine) Reconcile(ctx context.Context, observations []feed.Observation) []Event {
	events := make([]Event, 0)
	failed := 0

	for _, obs := range observations {
		event, detected, err := e.reconcileOne(ctx, obs)
		if err != nil {
			failed++
			e.logger.Error().Err(err).Str("asset", obs.ID).Msg("reconcile failed for asset")
			continue
		}
		if detected {
			events = append(events, event)
		}
	}

	if failed > 0 {
		e.logger.Warn().Int("failed", failed).Int("total", len(observations)).Msg("reconcile pass completed with failures")
	}
	return events
}

func (e *Engine) reconcileOne(ctx context.Context, obs feed.Observation) (Event, bool, error) {
	now := e.nowFn().UTC()

	snapshot, found, err := e.snapshots.GetSnapshot(ctx, obs.ID)
	if err != nil {
		return Event{}, false, err
	}

	if !found {
		return e.recordFirstObservation(ctx, obs, now)
	}

	previousATH := snapshot.ATH

	switch {
	case obs.CurrentPrice.GreaterThan(previousATH):
		// The system witnessed the crossing itself, so the detection
		// timestamp is the ATH date.
		snapshot = applyObservation(snapshot, obs, now)
		snapshot.ATH = obs.CurrentPrice
		snapshot.ATHDate = now
		if err := e.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
			return Event{}, false, err
		}
		return Event{
			AssetID:     obs.ID,
			Symbol:      obs.Symbol,
			Name:        obs.Name,
			PreviousATH: previousATH,
			NewATH:      obs.CurrentPrice,
			ATHDate:     now,
			DetectedAt:  now,
			Kind:        KindRealTime,
		}, true, nil

	case obs.FeedATH.GreaterThan(previousATH):
		if !e.plausible(obs) {
			e.logger.Warn().
				Str("asset", obs.ID).
				Str("feed_ath", obs.FeedATH.String()).
				Str("current_price", obs.CurrentPrice.String()).
				Msg("rejecting implausible feed ath")
			break
		}

		athDate := obs.ATHDate
		if athDate.IsZero() {
			athDate = now
		}
		snapshot = applyObservation(snapshot, obs, now)
		snapshot.ATH = obs.FeedATH
		snapshot.ATHDate = athDate
		if err := e.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
			return Event{}, false, err
		}
		return Event{
			AssetID:     obs.ID,
			Symbol:      obs.Symbol,
			Name:        obs.Name,
			PreviousATH: previousATH,
			NewATH:      obs.FeedATH,
			ATHDate:     athDate,
			DetectedAt:  now,
			Kind:        KindMissed,
		}, true, nil
	}

	// Routine refresh: mutable fields move, the recorded ATH must not.
	snapshot = applyObservation(snapshot, obs, now)
	if err := e.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		return Event{}, false, err
	}
	return Event{}, false, nil
}

// recordFirstObservation stores a never-before-seen asset. The higher of the
// current price and the feed's reported ATH seeds the recorded ATH; an event
// is emitted only when the asset is observed at its high right now.
func (e *Engine) recordFirstObservation(ctx context.Context, obs feed.Observation, now time.Time) (Event, bool, error) {
	snapshot := store.Snapshot{
		ID:            obs.ID,
		Symbol:        obs.Symbol,
		Name:          obs.Name,
		CurrentPrice:  obs.CurrentPrice,
		MarketCapRank: obs.MarketCapRank,
		TotalVolume:   obs.TotalVolume,
		LastUpdated:   now,
	}

	atHigh := obs.CurrentPrice.GreaterThanOrEqual(obs.FeedATH)
	if atHigh {
		snapshot.ATH = obs.CurrentPrice
		snapshot.ATHDate = now
	} else {
		snapshot.ATH = obs.FeedATH
		snapshot.ATHDate = obs.ATHDate
		if snapshot.ATHDate.IsZero() {
			snapshot.ATHDate = now
		}
	}

	if err := e.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		return Event{}, false, err
	}

	if !atHigh {
		return Event{}, false, nil
	}
	return Event{
		AssetID:     obs.ID,
		Symbol:      obs.Symbol,
		Name:        obs.Name,
		PreviousATH: decimal.Zero,
		NewATH:      obs.CurrentPrice,
		ATHDate:     now,
		DetectedAt:  now,
		Kind:        KindFirstObservation,
	}, true, nil
}

// plausible rejects feed ATH values wildly above the current price.
func (e *Engine) plausible(obs feed.Observation) bool {
	if obs.CurrentPrice.IsZero() {
		return false
	}
	return obs.FeedATH.Div(obs.CurrentPrice).LessThanOrEqual(e.maxRatio)
}

func applyObservation(snapshot store.Snapshot, obs feed.Observation, now time.Time) store.Snapshot {
	snapshot.Symbol = obs.Symbol
	snapshot.Name = obs.Name
	snapshot.CurrentPrice = obs.CurrentPrice
	snapshot.MarketCapRank = obs.MarketCapRank
	snapshot.TotalVolume = obs.TotalVolume
	snapshot.LastUpdated = now
	return snapshot
}
