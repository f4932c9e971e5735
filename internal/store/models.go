package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the system of record for one tracked asset. ATH is this system's
// own recorded all-time high; the detection engine only ever raises it.
type Snapshot struct {
	ID            string
	Symbol        string
	Name          string
	CurrentPrice  decimal.Decimal
	ATH           decimal.Decimal
	ATHDate       time.Time
	MarketCapRank int
	TotalVolume   decimal.Decimal
	LastUpdated   time.Time
}

// NotificationLog records one dispatched notification batch. RecipientCount
// counts successful sends only.
type NotificationLog struct {
	ID             string          `json:"id"`
	AssetID        string          `json:"asset_id"`
	Symbol         string          `json:"symbol"`
	PreviousATH    decimal.Decimal `json:"previous_ath"`
	NewATH         decimal.Decimal `json:"new_ath"`
	SentAt         time.Time       `json:"sent_at"`
	RecipientCount int             `json:"recipient_count"`
}
