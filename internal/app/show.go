package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Show prints recent notification log entries.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	logs, err := st.ListRecentLogs(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Fprintln(os.Stdout, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tAsset\tSymbol\tPrevious ATH\tNew ATH\tChange%\tRecipients")

	for _, entry := range logs {
		change := decimal.Zero
		if !entry.PreviousATH.IsZero() {
			change = entry.NewATH.Sub(entry.PreviousATH).Div(entry.PreviousATH).Mul(decimal.NewFromInt(100))
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			entry.SentAt.UTC().Format(time.RFC3339),
			entry.AssetID,
			entry.Symbol,
			formatDecimal(entry.PreviousATH, 4),
			formatDecimal(entry.NewATH, 4),
			formatDecimal(change, 2),
			entry.RecipientCount,
		)
	}

	return writer.Flush()
}

// Assets prints every tracked asset with its stored snapshot.
func (a *App) Assets(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := st.ListTracked(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stdout, "no tracked assets")
		return nil
	}
	sort.Strings(ids)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Asset\tSymbol\tRank\tPrice\tATH\tATH Date (UTC)\tUpdated (UTC)")

	for _, id := range ids {
		snapshot, found, err := st.GetSnapshot(ctx, id)
		if err != nil {
			a.Logger.Error().Err(err).Str("asset", id).Msg("failed to load snapshot")
			continue
		}
		if !found {
			continue
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			snapshot.ID,
			snapshot.Symbol,
			snapshot.MarketCapRank,
			formatDecimal(snapshot.CurrentPrice, 4),
			formatDecimal(snapshot.ATH, 4),
			snapshot.ATHDate.UTC().Format(time.RFC3339),
			snapshot.LastUpdated.UTC().Format(time.RFC3339),
		)
	}

	return writer.Flush()
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
