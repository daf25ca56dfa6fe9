package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ge-price-pipeline/internal/cleaner"
)

// maxChartSeries caps how many items are drawn on one chart; beyond this the
// highest-volume items win.
const maxChartSeries = 8

// Export runs the cleaning pipeline and renders the panel as CSV and/or a
// PNG chart of per-item prices over time.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	panel, err := cleaner.New(a.Config, store, a.Logger).Load(ctx, opts.NHours)
	if err != nil {
		return err
	}

	panel, err = cleaner.FilterRows(panel, cleaner.Filter{
		ItemIDs: opts.ItemIDs,
		Start:   opts.From,
		End:     opts.To,
	})
	if err != nil {
		return err
	}
	if len(panel) == 0 {
		a.Logger.Info().Msg("no panel rows for export window")
		return nil
	}

	downsampled := downsamplePanel(panel, opts.MaxPoints)
	a.Logger.Info().Int("total", len(panel)).Int("exported", len(downsampled)).Msg("exporting panel")

	if opts.CSVPath != "" {
		if err := writePanelCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePanelPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// downsamplePanel thins each item's series evenly so the whole panel stays
// under max rows. Series boundaries are respected; first and last points of
// each series are kept.
func downsamplePanel(rows []cleaner.Row, max int) []cleaner.Row {
	if max <= 0 || len(rows) <= max {
		return rows
	}

	items := cleaner.Items(rows)
	perItem := max / len(items)
	if perItem < 2 {
		perItem = 2
	}

	var out []cleaner.Row
	for _, item := range items {
		series := itemSeries(rows, item.ID)
		out = append(out, downsampleSeries(series, perItem)...)
	}
	return out
}

func itemSeries(rows []cleaner.Row, itemID int64) []cleaner.Row {
	var series []cleaner.Row
	for _, row := range rows {
		if row.ItemID == itemID {
			series = append(series, row)
		}
	}
	return series
}

func downsampleSeries(series []cleaner.Row, max int) []cleaner.Row {
	if max <= 0 || len(series) <= max {
		return series
	}

	result := make([]cleaner.Row, 0, max)
	step := float64(len(series)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(series) {
			idx = len(series) - 1
		}
		result = append(result, series[idx])
	}
	return result
}

func writePanelCSV(path string, rows []cleaner.Row) error {
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

	header := []string{"item_id", "name", "datetime", "price", "margin", "volume"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ItemID, 10),
			row.Name,
			row.Datetime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(row.Price, 'f', -1, 64),
			strconv.FormatFloat(row.Margin, 'f', -1, 64),
			strconv.FormatFloat(row.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePanelPNG(path string, rows []cleaner.Row) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	items := chartItems(rows)

	series := make([]chart.Series, 0, len(items))
	for _, item := range items {
		itemRows := itemSeries(rows, item.ID)

		x := make([]time.Time, len(itemRows))
		y := make([]float64, len(itemRows))
		for i, row := range itemRows {
			x[i] = row.Datetime
			y[i] = row.Price
		}

		name := item.Name
		if name == "" {
			name = strconv.FormatInt(item.ID, 10)
		}
		series = append(series, chart.TimeSeries{
			Name:    name,
			XValues: x,
			YValues: y,
		})
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (gp)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// chartItems picks the items to draw, preferring the highest traded volume
// when the panel holds more than maxChartSeries items.
func chartItems(rows []cleaner.Row) []cleaner.ItemRef {
	items := cleaner.Items(rows)
	if len(items) <= maxChartSeries {
		return items
	}

	volumes := make(map[int64]float64)
	for _, row := range rows {
		volumes[row.ItemID] += row.Volume
	}
	sort.Slice(items, func(i, j int) bool {
		return volumes[items[i].ID] > volumes[items[j].ID]
	})
	return items[:maxChartSeries]
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
