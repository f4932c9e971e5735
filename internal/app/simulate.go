package app

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"ath-alerts/internal/feed"
	"ath-alerts/internal/pipeline"
)

// SimulateOptions describe a synthetic observation.
type SimulateOptions struct {
	AssetID      string
	Symbol       string
	Name         string
	CurrentPrice decimal.Decimal
	FeedATH      decimal.Decimal
}

// SimulateATH pushes one synthetic observation through the real detection,
// gating, and dispatch path. Snapshots, cooldown markers, and the notification
// log are written exactly as in a live cycle.
func (a *App) SimulateATH(ctx context.Context, opts SimulateOptions) (pipeline.Summary, error) {
	if opts.AssetID == "" {
		return pipeline.Summary{}, errors.New("--asset is required")
	}
	if opts.CurrentPrice.LessThanOrEqual(decimal.Zero) {
		return pipeline.Summary{}, errors.New("--price must be greater than zero")
	}
	if opts.FeedATH.LessThan(decimal.Zero) {
		return pipeline.Summary{}, errors.New("--feed-ath cannot be negative")
	}
	if opts.FeedATH.IsZero() {
		opts.FeedATH = opts.CurrentPrice
	}
	if opts.Symbol == "" {
		opts.Symbol = strings.ToUpper(opts.AssetID)
	}
	if opts.Name == "" {
		opts.Name = opts.AssetID
	}

	static := &staticFetcher{observations: []feed.Observation{{
		ID:           opts.AssetID,
		Symbol:       opts.Symbol,
		Name:         opts.Name,
		CurrentPrice: opts.CurrentPrice,
		FeedATH:      opts.FeedATH,
	}}}

	svc, closer, err := a.assemblePipeline(ctx, static)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer closer()

	return svc.RunCycle(ctx)
}

type staticFetcher struct {
	observations []feed.Observation
}

func (s *staticFetcher) FetchRanked(ctx context.Context, page int) ([]feed.Observation, error) {
	if page > 1 {
		return nil, nil
	}
	return s.observations, nil
}

var _ feed.RankedFetcher = (*staticFetcher)(nil)
