package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"straitpulse/pkg/contracts/domain"
)

var schemas = map[string][]string{
	KindPostgres: {
		`CREATE TABLE IF NOT EXISTS assets (
    id     BIGSERIAL PRIMARY KEY,
    symbol TEXT NOT NULL UNIQUE
)`,
		`CREATE TABLE IF NOT EXISTS market_data (
    asset_id BIGINT NOT NULL REFERENCES assets(id),
    date     DATE NOT NULL,
    open     DOUBLE PRECISION,
    high     DOUBLE PRECISION,
    low      DOUBLE PRECISION,
    close    DOUBLE PRECISION,
    volume   BIGINT,
    value    DOUBLE PRECISION,
    PRIMARY KEY (asset_id, date)
)`,
	},
	KindSQLite: {
		`CREATE TABLE IF NOT EXISTS assets (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL UNIQUE
)`,
		`CREATE TABLE IF NOT EXISTS market_data (
    asset_id INTEGER NOT NULL REFERENCES assets(id),
    date     TEXT NOT NULL,
    open     REAL,
    high     REAL,
    low      REAL,
    close    REAL,
    volume   INTEGER,
    value    REAL,
    PRIMARY KEY (asset_id, date)
)`,
	},
}

const rangeQuery = `
SELECT md.date, md.close, md.value
FROM market_data md
JOIN assets a ON a.id = md.asset_id
WHERE a.symbol = ? AND md.date >= ? AND md.date <= ?
ORDER BY md.date`

const upsertPointQuery = `
INSERT INTO market_data (asset_id, date, open, high, low, close, volume, value)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (asset_id, date) DO UPDATE SET
    open = excluded.open,
    high = excluded.high,
    low = excluded.low,
    close = excluded.close,
    volume = excluded.volume,
    value = excluded.value`

// SQLSource reads indicator values from the assets/market_data tables.
// The derived value column is preferred; close is the fallback.
type SQLSource struct {
	db      *sql.DB
	dialect string
	symbols map[string]string
	logger  *slog.Logger
}

// OpenSQL connects to Postgres (lib/pq) or SQLite (modernc) and verifies the connection
func OpenSQL(ctx context.Context, dialect, dsn string, symbols map[string]string, logger *slog.Logger) (*SQLSource, error) {
	driver, ok := map[string]string{KindPostgres: "postgres", KindSQLite: "sqlite"}[dialect]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == KindSQLite {
		// A single writer avoids SQLITE_BUSY on file databases
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	return NewSQLSource(db, dialect, symbols, logger), nil
}

// NewSQLSource wraps an open database handle
func NewSQLSource(db *sql.DB, dialect string, symbols map[string]string, logger *slog.Logger) *SQLSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLSource{
		db:      db,
		dialect: dialect,
		symbols: symbols,
		logger:  logger.With(slog.String("component", "datasource"), slog.String("dialect", dialect)),
	}
}

// EnsureSchema creates the assets and market_data tables when missing
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemas[s.dialect] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert writes points for a symbol, replacing rows with the same (asset_id, date)
func (s *SQLSource) Upsert(ctx context.Context, symbol string, points []domain.MarketPoint) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		s.rebind(`INSERT INTO assets (symbol) VALUES (?) ON CONFLICT (symbol) DO NOTHING`), symbol); err != nil {
		return fmt.Errorf("upsert asset %s: %w", symbol, err)
	}

	var assetID int64
	if err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT id FROM assets WHERE symbol = ?`), symbol).Scan(&assetID); err != nil {
		return fmt.Errorf("lookup asset %s: %w", symbol, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(upsertPointQuery))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		var closeVal, value sql.NullFloat64
		if p.HasClose {
			closeVal = sql.NullFloat64{Float64: p.Close, Valid: true}
		}
		if p.HasValue {
			value = sql.NullFloat64{Float64: p.Value, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, assetID, domain.FormatDate(p.Date),
			p.Open, p.High, p.Low, closeVal, p.Volume, value); err != nil {
			return fmt.Errorf("upsert %s %s: %w", symbol, domain.FormatDate(p.Date), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	s.logger.Info("market data upserted", slog.String("symbol", symbol), slog.Int("rows", len(points)))
	return nil
}

// ValueAt implements Source
func (s *SQLSource) ValueAt(ctx context.Context, indicatorID string, date time.Time) (float64, bool, error) {
	d := domain.CalendarDate(date)
	vals, err := s.Range(ctx, indicatorID, domain.DateRange{Start: d, End: d})
	if err != nil {
		return 0, false, err
	}
	v, ok := vals.Get(d)
	return v, ok, nil
}

// Range implements RangeSource
func (s *SQLSource) Range(ctx context.Context, indicatorID string, r domain.DateRange) (Values, error) {
	symbol := symbolFor(s.symbols, indicatorID)

	rows, err := s.db.QueryContext(ctx, s.rebind(rangeQuery),
		symbol, domain.FormatDate(r.Start), domain.FormatDate(r.End))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", symbol, err)
	}
	defer rows.Close()

	out := make(Values)
	for rows.Next() {
		var (
			rawDate         any
			closeVal, value sql.NullFloat64
		)
		if err := rows.Scan(&rawDate, &closeVal, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", symbol, err)
		}
		key, err := dateKey(rawDate)
		if err != nil {
			return nil, err
		}
		switch {
		case value.Valid:
			out[key] = value.Float64
		case closeVal.Valid:
			out[key] = closeVal.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", symbol, err)
	}
	return out, nil
}

// Ping checks the database is reachable
func (s *SQLSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $n for Postgres
func (s *SQLSource) rebind(query string) string {
	if s.dialect != KindPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func dateKey(raw any) (string, error) {
	switch v := raw.(type) {
	case time.Time:
		return domain.FormatDate(v), nil
	case string:
		return normalizeDateText(v)
	case []byte:
		return normalizeDateText(string(v))
	default:
		return "", fmt.Errorf("unexpected date column type %T", raw)
	}
}

func normalizeDateText(s string) (string, error) {
	if len(s) >= len(domain.DateLayout) {
		if d, err := domain.ParseDate(s[:len(domain.DateLayout)]); err == nil {
			return domain.FormatDate(d), nil
		}
	}
	return "", fmt.Errorf("unexpected date value %q", s)
}
