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
	"strings"

	"crosschain-lending-go/internal/models"

	"go.uber.org/zap"
)

func requireAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return invalidRequest("address is required")
	}
	return nil
}

// GetPoolStatus returns liquidity per chain valued at one price snapshot
func (s *LedgerService) GetPoolStatus(ctx context.Context) (*models.PoolStatusData, string, error) {
	prices, warning, err := s.viewPrices(ctx)
	if err != nil {
		return nil, "", err
	}
	data, err := s.aggregation.GetPoolStatus(ctx, prices)
	if err != nil {
		zap.L().Error("Failed to compute pool status", zap.Error(err))
		return nil, "", err
	}
	return data, warning, nil
}

func (s *LedgerService) GetDashboard(ctx context.Context, address string) (*models.DashboardUserData, string, error) {
	if err := requireAddress(address); err != nil {
		return nil, "", err
	}
	prices, warning, err := s.viewPrices(ctx)
	if err != nil {
		return nil, "", err
	}
	data, err := s.aggregation.GetDashboardData(ctx, address, prices)
	if err != nil {
		zap.L().Error("Failed to build dashboard", zap.String("address", address), zap.Error(err))
		return nil, "", err
	}
	return data, warning, nil
}

func (s *LedgerService) GetUserLoans(ctx context.Context, address string) (*models.UserLoansData, string, error) {
	if err := requireAddress(address); err != nil {
		return nil, "", err
	}
	prices, warning, err := s.viewPrices(ctx)
	if err != nil {
		return nil, "", err
	}
	data, err := s.aggregation.GetUserLoans(ctx, address, prices)
	if err != nil {
		zap.L().Error("Failed to list user loans", zap.String("address", address), zap.Error(err))
		return nil, "", err
	}
	return data, warning, nil
}

func (s *LedgerService) GetCollateralStatus(ctx context.Context, address string) (*models.CollateralStatusData, string, error) {
	if err := requireAddress(address); err != nil {
		return nil, "", err
	}
	prices, warning, err := s.viewPrices(ctx)
	if err != nil {
		return nil, "", err
	}
	data, err := s.aggregation.GetCollateralStatus(ctx, address, prices)
	if err != nil {
		zap.L().Error("Failed to load collateral status", zap.String("address", address), zap.Error(err))
		return nil, "", err
	}
	return data, warning, nil
}

func (s *LedgerService) GetLendEarnings(ctx context.Context, address string) (*models.LendEarningsData, string, error) {
	if err := requireAddress(address); err != nil {
		return nil, "", err
	}
	prices, warning, err := s.viewPrices(ctx)
	if err != nil {
		return nil, "", err
	}
	data, err := s.aggregation.GetLendEarnings(ctx, address, prices)
	if err != nil {
		zap.L().Error("Failed to compute lend earnings", zap.String("address", address), zap.Error(err))
		return nil, "", err
	}
	return data, warning, nil
}

// GetTransactionHistory returns paginated ledger events for an identity
func (s *LedgerService) GetTransactionHistory(ctx context.Context, address string, limit, offset int) (*models.LedgerHistory, error) {
	if err := requireAddress(address); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	identity, err := s.store.ResolveIdentity(ctx, address)
	if err != nil {
		return nil, err
	}
	events, err := s.store.GetLedgerHistory(ctx, identity.Addresses(), limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("address", identity.Requested),
			zap.Error(err))
		return nil, err
	}
	if events == nil {
		events = make([]models.LedgerEvent, 0)
	}
	return &models.LedgerHistory{Address: identity.Requested, Events: events}, nil
}
