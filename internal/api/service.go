/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"
	"time"

	"crosschain-lending-go/internal/aggregation"
	"crosschain-lending-go/internal/chain"
	"crosschain-lending-go/internal/loan"
	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"go.uber.org/zap"
)

// PriceOracle serves the current snapshot and, separately, the last good one
type PriceOracle interface {
	CurrentPrices(ctx context.Context) (models.PriceSnapshot, error)
	LastKnown() (models.PriceSnapshot, bool)
}

// DepositRecorder counts deposits by kind and chain
type DepositRecorder interface {
	DepositRecorded(kind string, chain models.Chain)
}

// LedgerService is the application layer behind the HTTP API
type LedgerService struct {
	store       store.LedgerStore
	verifier    chain.Verifier
	engine      *loan.Engine
	aggregation *aggregation.Service
	prices      PriceOracle
	recorder    DepositRecorder
	allowStale  bool
}

type LedgerServiceOptions struct {
	Store       store.LedgerStore
	Verifier    chain.Verifier
	Engine      *loan.Engine
	Aggregation *aggregation.Service
	Prices      PriceOracle
	Recorder    DepositRecorder
	// AllowStalePrices lets read views fall back to the last known snapshot
	AllowStalePrices bool
}

func NewLedgerService(opts LedgerServiceOptions) *LedgerService {
	return &LedgerService{
		store:       opts.Store,
		verifier:    opts.Verifier,
		engine:      opts.Engine,
		aggregation: opts.Aggregation,
		prices:      opts.Prices,
		recorder:    opts.Recorder,
		allowStale:  opts.AllowStalePrices,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// viewPrices returns the snapshot for a read view. When the feed is down and stale
// prices are allowed it returns the last known snapshot with a warning.
func (s *LedgerService) viewPrices(ctx context.Context) (models.PriceSnapshot, string, error) {
	snapshot, err := s.prices.CurrentPrices(ctx)
	if err == nil {
		return snapshot, "", nil
	}
	if !s.allowStale {
		return models.PriceSnapshot{}, "", err
	}

	last, ok := s.prices.LastKnown()
	if !ok {
		return models.PriceSnapshot{}, "", err
	}
	zap.L().Warn("Serving stale prices",
		zap.Time("last_updated", last.LastUpdated),
		zap.Error(err))
	warning := fmt.Sprintf("prices are stale, last updated %s", last.LastUpdated.UTC().Format(time.RFC3339))
	return last, warning, nil
}

func (s *LedgerService) GetPrices(ctx context.Context) (*models.PriceData, string, error) {
	snapshot, warning, err := s.viewPrices(ctx)
	if err != nil {
		return nil, "", err
	}
	data := snapshot.Data()
	return &data, warning, nil
}
