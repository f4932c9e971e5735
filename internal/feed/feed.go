package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Observation is one asset row from the price feed, validated and typed at the
// boundary. FeedATH is the feed's own reported all-time high, which is distinct
// from the ATH this system has recorded for the asset.
type Observation struct {
	ID            string
	Symbol        string
	Name          string
	CurrentPrice  decimal.Decimal
	FeedATH       decimal.Decimal
	ATHDate       time.Time
	MarketCap     decimal.Decimal
	MarketCapRank int
	TotalVolume   decimal.Decimal
	Change24hPct  decimal.Decimal
}

// RankedFetcher retrieves one page of market-cap-ranked asset observations.
type RankedFetcher interface {
	FetchRanked(ctx context.Context, page int) ([]Observation, error)
}
