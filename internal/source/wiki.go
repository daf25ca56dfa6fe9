package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	hourPath    = "/1h"
	mappingPath = "/mapping"
)

// WikiOptions parameterise the wiki prices fetcher.
type WikiOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Wiki fetches hourly snapshots from the wiki prices API.
type Wiki struct {
	opts    WikiOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewWiki constructs a wiki prices fetcher.
func NewWiki(opts WikiOptions, logger zerolog.Logger) *Wiki {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://prices.runescape.wiki/api/v1/osrs"
	}

	return &Wiki{
		opts:    opts,
		logger:  logger.With().Str("component", "wiki_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchHour retrieves the 1-hour snapshot for every tradable item at the
// given timestamp. Every returned row is stamped with the request hour. Rows
// missing any of the four price/volume fields are dropped. An hour the
// upstream has no data for yields an empty slice and a nil error.
func (w *Wiki) FetchHour(ctx context.Context, timestamp int64) ([]PriceRow, error) {
	endpoint := w.baseURL + hourPath + "?timestamp=" + strconv.FormatInt(timestamp, 10)

	payload, err := w.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var res hourResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("%w: decode hour response: %v", ErrUnavailable, err)
	}

	datetime := time.Unix(timestamp, 0).UTC()
	rows := make([]PriceRow, 0, len(res.Data))
	dropped := 0
	for id, entry := range res.Data {
		itemID, convErr := strconv.ParseInt(id, 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("%w: non-numeric item id %q", ErrUnavailable, id)
		}
		if entry.AvgHighPrice == nil || entry.AvgLowPrice == nil ||
			entry.HighPriceVolume == nil || entry.LowPriceVolume == nil {
			dropped++
			continue
		}
		rows = append(rows, PriceRow{
			ItemID:          itemID,
			Datetime:        datetime,
			AvgHighPrice:    *entry.AvgHighPrice,
			AvgLowPrice:     *entry.AvgLowPrice,
			HighPriceVolume: *entry.HighPriceVolume,
			LowPriceVolume:  *entry.LowPriceVolume,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ItemID < rows[j].ItemID })

	w.logger.Debug().
		Int64("timestamp", timestamp).
		Int("rows", len(rows)).
		Int("dropped", dropped).
		Msg("fetched hour snapshot")

	return rows, nil
}

// FetchCatalog retrieves the full item mapping in one call.
func (w *Wiki) FetchCatalog(ctx context.Context) ([]Item, error) {
	payload, err := w.get(ctx, w.baseURL+mappingPath)
	if err != nil {
		return nil, err
	}

	var entries []mappingEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode mapping response: %v", ErrUnavailable, err)
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, Item{
			ID:       e.ID,
			Name:     e.Name,
			Members:  e.Members,
			BuyLimit: e.Limit,
			Value:    e.Value,
			HighAlch: e.HighAlch,
			LowAlch:  e.LowAlch,
			Examine:  e.Examine,
		})
	}
	return items, nil
}

func (w *Wiki) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(w.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "gepipe/1.0")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	return payload, nil
}

type hourResponse struct {
	Data      map[string]hourEntry `json:"data"`
	Timestamp int64                `json:"timestamp"`
}

type hourEntry struct {
	AvgHighPrice    *int64 `json:"avgHighPrice"`
	AvgLowPrice     *int64 `json:"avgLowPrice"`
	HighPriceVolume *int64 `json:"highPriceVolume"`
	LowPriceVolume  *int64 `json:"lowPriceVolume"`
}

type mappingEntry struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Members  bool   `json:"members"`
	Limit    int64  `json:"limit"`
	Value    int64  `json:"value"`
	HighAlch int64  `json:"highalch"`
	LowAlch  int64  `json:"lowalch"`
	Examine  string `json:"examine"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("%w: api error (%d): %s", ErrUnavailable, status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%w: api error (%d): %s", ErrUnavailable, status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%w: api error (%d): %s", ErrUnavailable, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%w: api error (%d)", ErrUnavailable, status)
}

var _ PriceSource = (*Wiki)(nil)
