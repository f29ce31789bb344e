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

package aggregation

import (
	"context"
	"fmt"
	"time"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	usdPlaces  = 2
	ratePlaces = 4
)

var monthsPerYear = decimal.NewFromInt(12)

// UtilizationRecorder receives the per-chain utilization observed on each pool read
type UtilizationRecorder interface {
	PoolUtilization(chain models.Chain, rate decimal.Decimal)
}

// Service builds read-only views over the ledger. Every method takes the price
// snapshot explicitly so one response never mixes prices.
type Service struct {
	store    store.LedgerStore
	policy   models.LendingPolicy
	recorder UtilizationRecorder
	now      func() time.Time
}

func NewService(s store.LedgerStore, policy models.LendingPolicy, recorder UtilizationRecorder) *Service {
	return &Service{
		store:    s,
		policy:   policy,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func utilization(locked, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return locked.Div(total)
}

func usd(v decimal.Decimal) decimal.Decimal {
	return v.Round(usdPlaces)
}

// GetPoolStatus reports liquidity per chain and a USD-weighted summary
func (s *Service) GetPoolStatus(ctx context.Context, prices models.PriceSnapshot) (*models.PoolStatusData, error) {
	totals, err := s.store.GetPoolTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load pool totals: %w", err)
	}

	data := &models.PoolStatusData{
		Timestamp: s.now().Format(time.RFC3339),
		Prices:    prices.Data(),
		Pools:     make(map[models.Chain]*models.PoolChainData, len(models.SupportedChains)),
	}

	totalUSD, lockedUSD, availableUSD := decimal.Zero, decimal.Zero, decimal.Zero
	for _, c := range models.SupportedChains {
		t := totals[c]
		rate := utilization(t.Locked, t.Total)
		pool := &models.PoolChainData{
			Total:           t.Total,
			Locked:          t.Locked,
			Available:       t.Available(),
			UtilizationRate: rate.Round(ratePlaces),
			TotalUSD:        usd(prices.ValueUSD(c, t.Total)),
			LockedUSD:       usd(prices.ValueUSD(c, t.Locked)),
			AvailableUSD:    usd(prices.ValueUSD(c, t.Available())),
		}
		data.Pools[c] = pool

		totalUSD = totalUSD.Add(prices.ValueUSD(c, t.Total))
		lockedUSD = lockedUSD.Add(prices.ValueUSD(c, t.Locked))
		availableUSD = availableUSD.Add(prices.ValueUSD(c, t.Available()))

		if s.recorder != nil {
			s.recorder.PoolUtilization(c, rate)
		}
	}

	data.Summary = models.PoolSummary{
		TotalUSD:               usd(totalUSD),
		LockedUSD:              usd(lockedUSD),
		AvailableUSD:           usd(availableUSD),
		OverallUtilizationRate: utilization(lockedUSD, totalUSD).Round(ratePlaces),
	}

	zap.L().Debug("Pool status computed",
		zap.String("total_usd", data.Summary.TotalUSD.String()),
		zap.String("locked_usd", data.Summary.LockedUSD.String()))
	return data, nil
}

// projectedEarnings is simple yield over one loan term
func (s *Service) projectedEarnings(amount decimal.Decimal) decimal.Decimal {
	months := decimal.NewFromInt(int64(s.policy.LoanTermMonths))
	return amount.Mul(s.policy.LendAPY).Mul(months).Div(monthsPerYear)
}

// GetLendEarnings splits a lender's deposits into locked and available using
// the pool utilization of each chain, and projects yield over one term.
func (s *Service) GetLendEarnings(ctx context.Context, address string, prices models.PriceSnapshot) (*models.LendEarningsData, error) {
	pos, err := s.loadPosition(ctx, address)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.GetPoolTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load pool totals: %w", err)
	}

	data := &models.LendEarningsData{
		Address:               pos.identity.Requested,
		AnnualPercentageYield: s.policy.LendAPY,
		LoanTermMonths:        s.policy.LoanTermMonths,
	}
	for _, d := range pos.lends {
		data.TotalBalance.Add(d.Chain, d.Amount)
	}

	totalUSD := decimal.Zero
	for _, c := range models.SupportedChains {
		total := data.TotalBalance.Get(c)
		if total.IsZero() {
			continue
		}
		pool := totals[c]
		locked := total.Mul(utilization(pool.Locked, pool.Total)).Round(c.Decimals())
		data.LockedBalance.Add(c, locked)
		data.AvailableBalance.Add(c, total.Sub(locked))
		data.ProjectedEarnings.Add(c, s.projectedEarnings(total))
		totalUSD = totalUSD.Add(prices.ValueUSD(c, total))
	}
	data.TotalValueUSD = usd(totalUSD)
	return data, nil
}
