package database

import (
	"context"

	"crossarb/internal/model"
)

// Repository defines the standard interface for database operations.
type Repository interface {
	LogObservation(ctx context.Context, obs model.Observation) error
	LogTrade(ctx context.Context, trade model.TradeRecord) error
	Migrate(ctx context.Context) error
}

// NopRepository discards everything. It is used when the database is disabled.
type NopRepository struct{}

func (NopRepository) LogObservation(context.Context, model.Observation) error { return nil }
func (NopRepository) LogTrade(context.Context, model.TradeRecord) error       { return nil }
func (NopRepository) Migrate(context.Context) error                           { return nil }
