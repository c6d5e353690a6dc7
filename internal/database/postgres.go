package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"crossarb/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS observations (
	id BIGSERIAL PRIMARY KEY,
	logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	exchange VARCHAR(50) NOT NULL,
	trading_pair VARCHAR(20) NOT NULL,
	exchange_timestamp TIMESTAMPTZ NOT NULL,
	bids TEXT NOT NULL,
	high_bid NUMERIC(30, 12) NOT NULL,
	high_bid_size NUMERIC(30, 12) NOT NULL,
	asks TEXT NOT NULL,
	low_ask NUMERIC(30, 12) NOT NULL,
	low_ask_size NUMERIC(30, 12) NOT NULL
);
CREATE INDEX IF NOT EXISTS observations_pair_idx ON observations (trading_pair, logged_at);

CREATE TABLE IF NOT EXISTS arbitrage_trades (
	id UUID PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	trading_pair VARCHAR(20) NOT NULL,
	sell_exchange VARCHAR(50) NOT NULL,
	buy_exchange VARCHAR(50) NOT NULL,
	sell_price NUMERIC(30, 12) NOT NULL,
	buy_price NUMERIC(30, 12) NOT NULL,
	amount NUMERIC(30, 12) NOT NULL,
	spread_percent NUMERIC(12, 6) NOT NULL,
	sell_order_id VARCHAR(100) NOT NULL DEFAULT '',
	buy_order_id VARCHAR(100) NOT NULL DEFAULT '',
	base_diff NUMERIC(30, 12) NOT NULL,
	quote_diff NUMERIC(30, 12) NOT NULL,
	outcome VARCHAR(20) NOT NULL
);`

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository opens a pool for dsn and verifies connectivity.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LogObservation(ctx context.Context, obs model.Observation) error {
	const q = `
	INSERT INTO observations (logged_at, exchange, trading_pair, exchange_timestamp, bids, high_bid, high_bid_size, asks, low_ask, low_ask_size)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.Pool.Exec(ctx, q,
		obs.Timestamp, obs.Venue, obs.Pair.String(), obs.ExchangeTimestamp,
		model.FormatLevels(obs.Bids), obs.BestBid, obs.BestBidSize,
		model.FormatLevels(obs.Asks), obs.BestAsk, obs.BestAskSize,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert observation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LogTrade(ctx context.Context, trade model.TradeRecord) error {
	const q = `
	INSERT INTO arbitrage_trades (id, timestamp, trading_pair, sell_exchange, buy_exchange, sell_price, buy_price, amount,
		spread_percent, sell_order_id, buy_order_id, base_diff, quote_diff, outcome)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.Pool.Exec(ctx, q,
		trade.ID, trade.Timestamp, trade.TradingPair, trade.SellExchange, trade.BuyExchange,
		trade.SellPrice, trade.BuyPrice, trade.Amount, trade.SpreadPercent,
		trade.SellOrderID, trade.BuyOrderID, trade.BaseDiff, trade.QuoteDiff, trade.Outcome,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}
