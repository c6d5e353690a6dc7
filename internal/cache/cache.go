// Package cache keeps the most recent cross-rate per pair so valuations can fall back
// to it when a venue ticker is unreachable.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"crossarb/internal/model"
)

// ErrNotFound is returned when no rate has been stored for a pair.
var ErrNotFound = errors.New("rate not found")

// Rate is one observed price of Pair.Base in Pair.Quote.
type Rate struct {
	Value float64
	At    time.Time
}

// RateCache stores the latest rate per pair.
type RateCache interface {
	Get(ctx context.Context, pair model.Pair) (Rate, error)
	Set(ctx context.Context, pair model.Pair, rate Rate) error
}

// MemoryRateCache is a process-local RateCache.
type MemoryRateCache struct {
	mu    sync.RWMutex
	rates map[model.Pair]Rate
}

func NewMemoryRateCache() *MemoryRateCache {
	return &MemoryRateCache{rates: make(map[model.Pair]Rate)}
}

func (c *MemoryRateCache) Get(_ context.Context, pair model.Pair) (Rate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rates[pair]
	if !ok {
		return Rate{}, ErrNotFound
	}
	return r, nil
}

// Set keeps the newer of the stored and the given rate.
func (c *MemoryRateCache) Set(_ context.Context, pair model.Pair, rate Rate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.rates[pair]; ok && cur.At.After(rate.At) {
		return nil
	}
	c.rates[pair] = rate
	return nil
}
