package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ath-alerts/internal/detect"
	"ath-alerts/internal/store"
	"ath-alerts/internal/subscribers"
)

var decHundred = decimal.NewFromInt(100)

// DispatchResult summarises one fanout. RecipientCount counts successful
// sends; Errors holds one entry per failed recipient.
type DispatchResult struct {
	RecipientCount int
	Errors         []error
}

// Dispatcher resolves the eligible recipient set for an event and delivers a
// notification to each, best effort with full accounting.
type Dispatcher struct {
	recipients subscribers.RecipientSource
	sender     Sender
	logs       store.NotificationLogStore
	logger     zerolog.Logger
	nowFn      func() time.Time
}

// NewDispatcher constructs a dispatch queue.
func NewDispatcher(recipients subscribers.RecipientSource, sender Sender, logs store.NotificationLogStore, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		recipients: recipients,
		sender:     sender,
		logs:       logs,
		logger:     logger.With().Str("component", "dispatch_queue").Logger(),
		nowFn:      time.Now,
	}
}

// Dispatch fans the event out to every eligible recipient. A failed send is
// recorded and the batch continues. Exactly one notification log entry is
// written per event that produced at least one attempt; the entry is keyed by
// event identity so a retry cannot duplicate it.
func (d *Dispatcher) Dispatch(ctx context.Context, event detect.Event) (DispatchResult, error) {
	recipients, err := d.recipients.ListEligible(ctx)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("resolve recipients: %w", err)
	}

	result := DispatchResult{}
	if len(recipients) == 0 {
		d.logger.Info().Str("asset", event.AssetID).Msg("no eligible recipients; nothing dispatched")
		return result, nil
	}

	msg := Message{
		AssetName:       event.Name,
		AssetSymbol:     event.Symbol,
		NewATH:          event.NewATH,
		PreviousATH:     event.PreviousATH,
		PercentIncrease: PercentIncrease(event.PreviousATH, event.NewATH),
		DetectedAt:      event.DetectedAt,
	}

	for _, recipient := range recipients {
		msg.Recipient = recipient
		if err := d.sender.Send(ctx, msg); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("recipient %s: %w", recipient.Email, err))
			continue
		}
		result.RecipientCount++
	}

	entry := store.NotificationLog{
		ID:             uuid.NewString(),
		AssetID:        event.AssetID,
		Symbol:         event.Symbol,
		PreviousATH:    event.PreviousATH,
		NewATH:         event.NewATH,
		SentAt:         d.nowFn().UTC(),
		RecipientCount: result.RecipientCount,
	}
	written, err := d.logs.AppendLog(ctx, event.Key(), entry)
	if err != nil {
		// The batch itself completed; surface the bookkeeping failure.
		return result, fmt.Errorf("write notification log: %w", err)
	}
	if !written {
		d.logger.Debug().Str("event", event.Key()).Msg("notification log entry already present")
	}

	d.logger.Info().
		Str("asset", event.AssetID).
		Str("kind", string(event.Kind)).
		Int("sent", result.RecipientCount).
		Int("failed", len(result.Errors)).
		Msg("notification batch dispatched")

	return result, nil
}

// PercentIncrease computes (new-prev)/prev*100, defined as zero when prev is
// zero.
func PercentIncrease(previous, next decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return next.Sub(previous).Div(previous).Mul(decHundred)
}
