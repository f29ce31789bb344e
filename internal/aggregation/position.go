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
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"crosschain-lending-go/internal/loan"
	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	collateralLocked    = "locked"
	collateralAvailable = "available"
)

// position is everything the ledger holds for one identity
type position struct {
	identity    *models.Identity
	lends       []models.LendDeposit
	collaterals []models.CollateralDeposit
	loans       []models.Loan

	// loanCollateral covers every loan's collateral, including deposits made
	// from an address that has since left the identity set
	loanCollateral map[string]models.CollateralDeposit
}

func (s *Service) loadPosition(ctx context.Context, address string) (*position, error) {
	identity, err := s.store.ResolveIdentity(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve identity: %w", err)
	}
	addresses := identity.Addresses()

	lends, err := s.store.GetLendDeposits(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("unable to load lend deposits: %w", err)
	}
	collaterals, err := s.store.GetCollateralDeposits(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("unable to load collateral deposits: %w", err)
	}
	loans, err := s.store.GetLoansByBorrowers(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("unable to load loans: %w", err)
	}

	// newest loans first
	sort.SliceStable(loans, func(i, j int) bool {
		return loans[i].StartTime.After(loans[j].StartTime)
	})

	loanCollateral := make(map[string]models.CollateralDeposit, len(loans))
	for _, d := range collaterals {
		loanCollateral[d.TxHash] = d
	}
	for _, l := range loans {
		if _, ok := loanCollateral[l.CollateralTxHash]; ok {
			continue
		}
		c, err := s.store.GetCollateralDeposit(ctx, l.CollateralTxHash)
		if errors.Is(err, store.ErrCollateralNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("unable to load loan collateral: %w", err)
		}
		loanCollateral[c.TxHash] = *c
	}

	zap.L().Debug("Loaded position",
		zap.String("address", identity.Requested),
		zap.String("canonical_address", identity.Canonical),
		zap.Int("lend_count", len(lends)),
		zap.Int("collateral_count", len(collaterals)),
		zap.Int("loan_count", len(loans)))

	return &position{
		identity:       identity,
		lends:          lends,
		collaterals:    collaterals,
		loans:          loans,
		loanCollateral: loanCollateral,
	}, nil
}

// GetDashboardData joins every record of the identity into lent, collateral and
// borrow rows. An address with no records yields empty lists and zero totals.
func (s *Service) GetDashboardData(ctx context.Context, address string, prices models.PriceSnapshot) (*models.DashboardUserData, error) {
	pos, err := s.loadPosition(ctx, address)
	if err != nil {
		return nil, err
	}

	records := models.DashboardRecords{
		LentRecords:       make([]models.LentRecord, 0),
		CollateralRecords: make([]models.CollateralRecord, 0, len(pos.collaterals)),
		BorrowRecords:     make([]models.BorrowRecord, 0, len(pos.loans)),
	}
	summary := models.DashboardSummary{}

	var lent models.ChainBalance
	for _, d := range pos.lends {
		lent.Add(d.Chain, d.Amount)
	}
	lentUSD, earningsUSD := decimal.Zero, decimal.Zero
	for _, c := range models.SupportedChains {
		amount := lent.Get(c)
		if amount.IsZero() {
			continue
		}
		value := prices.ValueUSD(c, amount)
		earnings := s.projectedEarnings(amount)
		records.LentRecords = append(records.LentRecords, models.LentRecord{
			Asset:             c.Symbol(),
			Amount:            amount,
			UsdValue:          usd(value),
			ProjectedEarnings: earnings,
		})
		lentUSD = lentUSD.Add(value)
		earningsUSD = earningsUSD.Add(prices.ValueUSD(c, earnings))
	}

	collateralUSD := decimal.Zero
	for _, d := range pos.collaterals {
		value := prices.ValueUSD(d.Chain, d.Amount)
		records.CollateralRecords = append(records.CollateralRecords, models.CollateralRecord{
			Asset:             d.Chain.Symbol(),
			Amount:            d.Amount,
			UsdValue:          usd(value),
			ProjectedEarnings: decimal.Zero,
			Locked:            d.IsLocked,
			TxHash:            d.TxHash,
		})
		collateralUSD = collateralUSD.Add(value)
	}

	borrowedUSD := decimal.Zero
	for _, l := range pos.loans {
		value := prices.ValueUSD(l.BorrowChain, l.BorrowAmount)
		records.BorrowRecords = append(records.BorrowRecords, models.BorrowRecord{
			Asset:    l.BorrowChain.Symbol(),
			Amount:   l.BorrowAmount,
			UsdValue: usd(value),
			DueDate:  l.DueDate,
			LoanId:   l.Id,
			Status:   l.Status,
		})
		if l.Status == models.LoanStatusActive {
			borrowedUSD = borrowedUSD.Add(value)
		}
	}

	summary.TotalLentUSD = usd(lentUSD)
	summary.TotalCollateralUSD = usd(collateralUSD)
	summary.TotalBorrowedUSD = usd(borrowedUSD)
	summary.TotalProjectedEarningsUSD = usd(earningsUSD)

	return &models.DashboardUserData{
		Address:         pos.identity.Requested,
		LinkedAddresses: linkedAddresses(pos.identity),
		Summary:         summary,
		Records:         records,
		Prices:          prices.Data(),
	}, nil
}

// GetUserLoans lists every loan of the identity with its collateral valued at the snapshot
func (s *Service) GetUserLoans(ctx context.Context, address string, prices models.PriceSnapshot) (*models.UserLoansData, error) {
	pos, err := s.loadPosition(ctx, address)
	if err != nil {
		return nil, err
	}

	now := s.now()
	data := &models.UserLoansData{
		Address:         pos.identity.Requested,
		LinkedAddresses: linkedAddresses(pos.identity),
		TotalLoans:      len(pos.loans),
		Loans:           make([]models.LoanSummary, 0, len(pos.loans)),
	}

	for _, l := range pos.loans {
		collateral := pos.loanCollateral[l.CollateralTxHash]
		collateralUSD := prices.ValueUSD(collateral.Chain, collateral.Amount)
		borrowUSD := prices.ValueUSD(l.BorrowChain, l.BorrowAmount)

		if l.Status == models.LoanStatusActive {
			data.ActiveLoans++
		}
		data.Loans = append(data.Loans, models.LoanSummary{
			LoanId:               l.Id,
			Borrower:             l.BorrowerAddress,
			BorrowAmount:         l.BorrowAmount,
			BorrowChain:          l.BorrowChain,
			BorrowValueUSD:       usd(borrowUSD),
			InterestRate:         l.InterestRate,
			InterestAmount:       l.InterestAmount,
			TotalRepaymentAmount: l.TotalRepaymentAmount,
			Status:               l.Status,
			StartTime:            l.StartTime,
			DueDate:              l.DueDate,
			IsOverdue:            l.IsOverdue(now),
			DaysUntilDue:         daysUntilDue(l, now),
			CollateralRatio:      loan.CollateralRatio(collateralUSD, borrowUSD).Round(ratePlaces),
			CollateralInfo: models.CollateralInfo{
				TxHash:   l.CollateralTxHash,
				Chain:    collateral.Chain,
				Amount:   collateral.Amount,
				ValueUSD: usd(collateralUSD),
			},
		})
	}
	return data, nil
}

// GetCollateralStatus lists collateral deposits with their lock state and per-chain totals
func (s *Service) GetCollateralStatus(ctx context.Context, address string, prices models.PriceSnapshot) (*models.CollateralStatusData, error) {
	pos, err := s.loadPosition(ctx, address)
	if err != nil {
		return nil, err
	}

	data := &models.CollateralStatusData{
		Address:          pos.identity.Requested,
		LinkedAddresses:  linkedAddresses(pos.identity),
		TotalCollaterals: len(pos.collaterals),
		Collaterals:      make([]models.CollateralStatus, 0, len(pos.collaterals)),
	}

	for _, d := range pos.collaterals {
		status := collateralAvailable
		if d.IsLocked {
			status = collateralLocked
			data.LockedCollaterals++
		} else {
			data.AvailableCollaterals++
		}
		data.CollateralBalances.Add(d.Chain, d.Amount)
		data.Collaterals = append(data.Collaterals, models.CollateralStatus{
			TxHash:       d.TxHash,
			Chain:        d.Chain,
			Amount:       d.Amount,
			ValueUSD:     usd(prices.ValueUSD(d.Chain, d.Amount)),
			IsLocked:     d.IsLocked,
			Status:       status,
			OwnerAddress: d.OwnerAddress,
		})
	}
	return data, nil
}

func linkedAddresses(identity *models.Identity) []string {
	linked := make([]string, 0, len(identity.Linked)+1)
	for _, a := range identity.Addresses() {
		if a != identity.Requested {
			linked = append(linked, a)
		}
	}
	return linked
}

// daysUntilDue rounds up to whole days and goes negative once overdue.
// Closed loans report zero.
func daysUntilDue(l models.Loan, now time.Time) int {
	if l.Status != models.LoanStatusActive {
		return 0
	}
	hours := l.DueDate.Sub(now).Hours()
	if hours >= 0 {
		return int(math.Ceil(hours / 24))
	}
	return -int(math.Ceil(-hours / 24))
}
