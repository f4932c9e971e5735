package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ath-alerts/internal/store"
)

// ExportOptions hold parameters for exporting notification history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	AssetID   string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders notification history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -30)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	logs, err := st.ListLogsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if opts.AssetID != "" {
		logs = filterByAsset(logs, opts.AssetID)
	}
	if len(logs) == 0 {
		a.Logger.Info().Msg("no notifications found for export window")
		return nil
	}

	downsampled := downsampleLogs(logs, opts.MaxPoints)
	a.Logger.Info().Int("total", len(logs)).Int("exported", len(downsampled)).Msg("exporting notification history")

	if opts.CSVPath != "" {
		if err := writeLogsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if len(downsampled) < 2 {
			a.Logger.Warn().Msg("need at least two entries to chart; skipping PNG")
			return nil
		}
		if err := writeLogsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func filterByAsset(logs []store.NotificationLog, assetID string) []store.NotificationLog {
	filtered := make([]store.NotificationLog, 0, len(logs))
	for _, entry := range logs {
		if entry.AssetID == assetID {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func downsampleLogs(logs []store.NotificationLog, max int) []store.NotificationLog {
	if max <= 0 || len(logs) <= max {
		return logs
	}

	result := make([]store.NotificationLog, 0, max)
	step := float64(len(logs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(logs) {
			idx = len(logs) - 1
		}
		result = append(result, logs[idx])
	}
	return result
}

func writeLogsCSV(path string, logs []store.NotificationLog) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"sent_at", "asset_id", "symbol", "previous_ath", "new_ath", "recipients"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, entry := range logs {
		record := []string{
			entry.SentAt.Format(time.RFC3339),
			entry.AssetID,
			entry.Symbol,
			entry.PreviousATH.String(),
			entry.NewATH.String(),
			strconv.Itoa(entry.RecipientCount),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeLogsPNG(path string, logs []store.NotificationLog) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(logs))
	newATH := make([]float64, len(logs))
	recipients := make([]float64, len(logs))

	for i, entry := range logs {
		x[i] = entry.SentAt
		newATH[i] = entry.NewATH.InexactFloat64()
		recipients[i] = float64(entry.RecipientCount)
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "New ATH",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Recipients",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "New ATH",
				XValues: x,
				YValues: newATH,
			},
			chart.TimeSeries{
				Name:    "Recipients",
				XValues: x,
				YValues: recipients,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
