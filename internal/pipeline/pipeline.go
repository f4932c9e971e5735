package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ath-alerts/internal/detect"
	"ath-alerts/internal/feed"
	"ath-alerts/internal/notify"
)

// Summary reports one pipeline invocation.
type Summary struct {
	StartedAt  time.Time
	Duration   time.Duration
	Assets     int
	Events     int
	Notified   int
	Suppressed int
	Errors     int
	Skipped    bool
}

// Service runs one bounded detection cycle: fetch ranked observations,
// reconcile ATH state, gate each event, fan out notifications. Correctness
// under overlapping invocations comes from the store-backed cooldown claims
// and per-event log keys, not from any in-process lock.
type Service struct {
	fetcher feed.RankedFetcher
	engine  *detect.Engine
	gate    *notify.Controller
	queue   *notify.Dispatcher
	pages   int
	logger  zerolog.Logger
	nowFn   func() time.Time
}

// New constructs the pipeline service.
func New(fetcher feed.RankedFetcher, engine *detect.Engine, gate *notify.Controller, queue *notify.Dispatcher, pages int, logger zerolog.Logger) *Service {
	if pages <= 0 {
		pages = 1
	}
	return &Service{
		fetcher: fetcher,
		engine:  engine,
		gate:    gate,
		queue:   queue,
		pages:   pages,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		nowFn:   time.Now,
	}
}

// RunCycle executes one invocation. A circuit-open feed is not an error: the
// cycle is skipped quietly and the next invocation retries. Any asset the
// cycle fails to process is picked up again next time, at worst through the
// missed-ATH path.
func (s *Service) RunCycle(ctx context.Context) (Summary, error) {
	start := s.nowFn()
	summary := Summary{StartedAt: start.UTC()}

	observations, skipped, err := s.fetchAll(ctx)
	summary.Skipped = skipped
	if err != nil {
		summary.Duration = s.nowFn().Sub(start)
		return summary, err
	}
	if skipped {
		summary.Duration = s.nowFn().Sub(start)
		s.logger.Warn().Msg("feed circuit open; skipping cycle")
		return summary, nil
	}
	summary.Assets = len(observations)

	events := s.engine.Reconcile(ctx, observations)
	summary.Events = len(events)

	for _, event := range events {
		proceed, err := s.gate.ShouldNotify(ctx, event.AssetID)
		if err != nil {
			summary.Errors++
			s.logger.Error().Err(err).Str("asset", event.AssetID).Msg("cooldown check failed")
			continue
		}
		if !proceed {
			summary.Suppressed++
			continue
		}

		result, err := s.queue.Dispatch(ctx, event)
		if err != nil {
			summary.Errors++
			s.logger.Error().Err(err).Str("asset", event.AssetID).Msg("dispatch failed")
			continue
		}
		summary.Notified++
		summary.Errors += len(result.Errors)
	}

	summary.Duration = s.nowFn().Sub(start)
	s.logger.Info().
		Dur("duration", summary.Duration).
		Int("assets", summary.Assets).
		Int("events", summary.Events).
		Int("notified", summary.Notified).
		Int("suppressed", summary.Suppressed).
		Int("errors", summary.Errors).
		Msg("cycle complete")

	return summary, nil
}

// fetchAll collects the configured pages. The first page failing abandons the
// cycle; a later page failing keeps the observations gathered so far.
func (s *Service) fetchAll(ctx context.Context) ([]feed.Observation, bool, error) {
	observations := make([]feed.Observation, 0)
	for page := 1; page <= s.pages; page++ {
		pageObs, err := s.fetcher.FetchRanked(ctx, page)
		if err != nil {
			if errors.Is(err, feed.ErrCircuitOpen) {
				if page == 1 {
					return nil, true, nil
				}
				// Page 1 came from the cache; reconcile what we have.
				s.logger.Warn().Int("page", page).Msg("feed circuit open; continuing with cached pages")
				break
			}
			if page == 1 {
				return nil, false, err
			}
			s.logger.Error().Err(err).Int("page", page).Msg("page fetch failed; continuing with partial data")
			break
		}
		observations = append(observations, pageObs...)
	}
	return observations, false, nil
}
