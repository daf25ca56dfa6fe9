package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ge-price-pipeline/internal/source"
)

var (
	// ErrNotConfigured indicates the store was not initialised.
	ErrNotConfigured = errors.New("storage: database not configured")
)

// datetimeLayout is the canonical text encoding for the datetime columns.
// RFC3339 in UTC sorts lexicographically, so ORDER BY works on the raw text.
const datetimeLayout = time.RFC3339

const (
	insertPriceSQL = `INSERT INTO prices (
        item_id,
        datetime,
        avgHighPrice,
        avgLowPrice,
        highPriceVolume,
        lowPriceVolume
    ) VALUES (?,?,?,?,?,?);`

	insertBlacklistSQL = `INSERT INTO blacklist (timestamp, datetime)
    VALUES (?,?)
    ON CONFLICT (timestamp) DO NOTHING;`

	insertItemSQL = `INSERT INTO items (
        id,
        name,
        members,
        buy_limit,
        value,
        highalch,
        lowalch,
        examine
    ) VALUES (?,?,?,?,?,?,?,?)
    ON CONFLICT (id) DO NOTHING;`

	listPricesSQL = `SELECT
        item_id,
        datetime,
        avgHighPrice,
        avgLowPrice,
        highPriceVolume,
        lowPriceVolume
    FROM prices
    ORDER BY datetime, item_id;`

	listRecentPricesSQL = `SELECT
        item_id,
        datetime,
        avgHighPrice,
        avgLowPrice,
        highPriceVolume,
        lowPriceVolume
    FROM prices
    ORDER BY datetime DESC, item_id
    LIMIT ?;`

	listItemsSQL = `SELECT
        id,
        name,
        members,
        buy_limit,
        value,
        highalch,
        lowalch,
        examine
    FROM items
    ORDER BY id;`

	listBlacklistSQL = `SELECT timestamp, datetime
    FROM blacklist
    ORDER BY timestamp;`

	distinctDatetimesSQL = `SELECT DISTINCT datetime
    FROM prices
    ORDER BY datetime;`

	countPricesSQL = `SELECT COUNT(*) FROM prices;`

	countItemsSQL = `SELECT COUNT(*) FROM items;`

	tradedPricesSQL = `WITH items_traded AS (
        SELECT item_id,
               AVG(avgHighPrice * highPriceVolume) AS amnt_traded_high
        FROM prices
        WHERE avgHighPrice IS NOT NULL
          AND highPriceVolume IS NOT NULL
        GROUP BY item_id
    )
    SELECT prices.item_id,
           items.name,
           prices.datetime,
           prices.avgHighPrice,
           prices.avgLowPrice,
           prices.highPriceVolume,
           prices.lowPriceVolume
    FROM prices
    INNER JOIN (
        SELECT DISTINCT item_id
        FROM items_traded
        WHERE amnt_traded_high > ?
    ) AS selected_items
        ON prices.item_id = selected_items.item_id
    LEFT JOIN items
        ON items.id = prices.item_id
    ORDER BY prices.item_id, prices.datetime;`
)

// PriceStore defines operations over the prices table.
type PriceStore interface {
	AppendPrices(ctx context.Context, rows []source.PriceRow) error
	ListPrices(ctx context.Context) ([]source.PriceRow, error)
	ListRecentPrices(ctx context.Context, limit int) ([]source.PriceRow, error)
	StoredDatetimes(ctx context.Context) ([]time.Time, error)
	CountPrices(ctx context.Context) (int64, error)
	ListTradedPrices(ctx context.Context, liquidityThreshold float64) ([]TradedPrice, error)
}

// BlacklistStore defines operations over the blacklist table.
type BlacklistStore interface {
	AppendBlacklist(ctx context.Context, entries []BlacklistEntry) error
	ListBlacklist(ctx context.Context) ([]BlacklistEntry, error)
}

// ItemStore defines operations over the item catalog.
type ItemStore interface {
	WriteItems(ctx context.Context, items []source.Item) error
	ListItems(ctx context.Context) ([]source.Item, error)
	CountItems(ctx context.Context) (int64, error)
}

// Store aggregates access to the prices, items, and blacklist tables.
type Store struct {
	db *sql.DB
}

// NewStore wires a sql handle into a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database handle.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

func (s *Store) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// AppendPrices appends a batch of price rows in one transaction. Either every
// row of the batch is recorded or none are, so a half-written hour can never
// be misread as present.
func (s *Store) AppendPrices(ctx context.Context, rows []source.PriceRow) error {
	if len(rows) == 0 {
		return nil
	}

	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin price append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertPriceSQL)
	if err != nil {
		return fmt.Errorf("prepare price insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ItemID,
			row.Datetime.UTC().Format(datetimeLayout),
			row.AvgHighPrice,
			row.AvgLowPrice,
			row.HighPriceVolume,
			row.LowPriceVolume,
		); err != nil {
			return fmt.Errorf("insert price row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit price append: %w", err)
	}
	return nil
}

// AppendBlacklist durably records hours that returned no data.
func (s *Store) AppendBlacklist(ctx context.Context, entries []BlacklistEntry) error {
	if len(entries) == 0 {
		return nil
	}

	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin blacklist append: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, insertBlacklistSQL,
			entry.Timestamp,
			entry.Datetime.UTC().Format(datetimeLayout),
		); err != nil {
			return fmt.Errorf("insert blacklist entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit blacklist append: %w", err)
	}
	return nil
}

// WriteItems stores the item catalog. Called once during first-time setup;
// existing ids are left untouched.
func (s *Store) WriteItems(ctx context.Context, items []source.Item) error {
	if len(items) == 0 {
		return nil
	}

	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin item write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertItemSQL)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx,
			item.ID,
			item.Name,
			item.Members,
			item.BuyLimit,
			item.Value,
			item.HighAlch,
			item.LowAlch,
			item.Examine,
		); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit item write: %w", err)
	}
	return nil
}

// ListPrices returns every stored price row ordered by datetime.
func (s *Store) ListPrices(ctx context.Context) ([]source.PriceRow, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.QueryContext(ctx, listPricesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices: %w", queryErr)
	}
	defer rows.Close()

	return scanPriceRows(rows)
}

// ListRecentPrices returns the most recent rows ordered by descending datetime.
func (s *Store) ListRecentPrices(ctx context.Context, limit int) ([]source.PriceRow, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.QueryContext(ctx, listRecentPricesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent prices: %w", queryErr)
	}
	defer rows.Close()

	return scanPriceRows(rows)
}

// StoredDatetimes returns the distinct hours present in the prices table.
func (s *Store) StoredDatetimes(ctx context.Context) ([]time.Time, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.QueryContext(ctx, distinctDatetimesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("stored datetimes: %w", queryErr)
	}
	defer rows.Close()

	var datetimes []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		dt, parseErr := time.Parse(datetimeLayout, raw)
		if parseErr != nil {
			return nil, fmt.Errorf("parse stored datetime: %w", parseErr)
		}
		datetimes = append(datetimes, dt.UTC())
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return datetimes, nil
}

// CountPrices counts stored price rows.
func (s *Store) CountPrices(ctx context.Context) (int64, error) {
	return s.count(ctx, countPricesSQL)
}

// CountItems counts stored catalog entries.
func (s *Store) CountItems(ctx context.Context) (int64, error) {
	return s.count(ctx, countItemsSQL)
}

func (s *Store) count(ctx context.Context, query string) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := db.QueryRowContext(ctx, query).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count rows: %w", scanErr)
	}
	return count, nil
}

// ListItems returns the stored item catalog.
func (s *Store) ListItems(ctx context.Context) ([]source.Item, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.QueryContext(ctx, listItemsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list items: %w", queryErr)
	}
	defer rows.Close()

	var items []source.Item
	for rows.Next() {
		var item source.Item
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Members,
			&item.BuyLimit,
			&item.Value,
			&item.HighAlch,
			&item.LowAlch,
			&item.Examine,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// ListBlacklist returns every blacklisted hour ordered by timestamp.
func (s *Store) ListBlacklist(ctx context.Context) ([]BlacklistEntry, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.QueryContext(ctx, listBlacklistSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list blacklist: %w", queryErr)
	}
	defer rows.Close()

	var entries []BlacklistEntry
	for rows.Next() {
		var (
			entry BlacklistEntry
			raw   string
		)
		if err := rows.Scan(&entry.Timestamp, &raw); err != nil {
			return nil, err
		}
		dt, parseErr := time.Parse(datetimeLayout, raw)
		if parseErr != nil {
			return nil, fmt.Errorf("parse blacklist datetime: %w", parseErr)
		}
		entry.Datetime = dt.UTC()
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// ListTradedPrices runs the liquidity selection join: items whose mean
// avgHighPrice*highPriceVolume exceeds the threshold, joined against the
// catalog for display names, ordered by item then datetime.
func (s *Store) ListTradedPrices(ctx context.Context, liquidityThreshold float64) ([]TradedPrice, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.QueryContext(ctx, tradedPricesSQL, liquidityThreshold)
	if queryErr != nil {
		return nil, fmt.Errorf("list traded prices: %w", queryErr)
	}
	defer rows.Close()

	var traded []TradedPrice
	for rows.Next() {
		var (
			row  TradedPrice
			name sql.NullString
			raw  string
		)
		if err := rows.Scan(
			&row.ItemID,
			&name,
			&raw,
			&row.AvgHighPrice,
			&row.AvgLowPrice,
			&row.HighPriceVolume,
			&row.LowPriceVolume,
		); err != nil {
			return nil, err
		}
		dt, parseErr := time.Parse(datetimeLayout, raw)
		if parseErr != nil {
			return nil, fmt.Errorf("parse traded price datetime: %w", parseErr)
		}
		row.Datetime = dt.UTC()
		if name.Valid {
			row.Name = name.String
		}
		traded = append(traded, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return traded, nil
}

func scanPriceRows(rows *sql.Rows) ([]source.PriceRow, error) {
	var prices []source.PriceRow
	for rows.Next() {
		var (
			row source.PriceRow
			raw string
		)
		if err := rows.Scan(
			&row.ItemID,
			&raw,
			&row.AvgHighPrice,
			&row.AvgLowPrice,
			&row.HighPriceVolume,
			&row.LowPriceVolume,
		); err != nil {
			return nil, err
		}
		dt, parseErr := time.Parse(datetimeLayout, raw)
		if parseErr != nil {
			return nil, fmt.Errorf("parse price datetime: %w", parseErr)
		}
		row.Datetime = dt.UTC()
		prices = append(prices, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prices, nil
}

var (
	_ PriceStore     = (*Store)(nil)
	_ BlacklistStore = (*Store)(nil)
	_ ItemStore      = (*Store)(nil)
)
