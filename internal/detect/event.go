package detect

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies how an ATH crossing was detected.
type Kind string

const (
	// KindFirstObservation marks an asset seen for the first time at its high.
	KindFirstObservation Kind = "first-observation"
	// KindRealTime marks a crossing the system witnessed itself.
	KindRealTime Kind = "real-time"
	// KindMissed marks a historical high the feed reported after the fact.
	KindMissed Kind = "missed"
)

// Event describes one detected ATH crossing. It is transient: it becomes
// durable only as a notification log entry after passing the frequency gate.
type Event struct {
	AssetID     string
	Symbol      string
	Name        string
	PreviousATH decimal.Decimal
	NewATH      decimal.Decimal
	ATHDate     time.Time
	DetectedAt  time.Time
	Kind        Kind
}

// Key is the event identity used for notification log dedupe. Two detections
// of the same crossing produce the same key.
func (e Event) Key() string {
	return e.AssetID + ":" + e.NewATH.String()
}
