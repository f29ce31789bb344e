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

package database

import (
	"context"
	"fmt"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetPoolTotals reads each chain's pool from the journal: total is what the
// pool holds (free plus lent out), locked is principal on active loans.
// Liquidated principal leaves the pool; a repayment lands on the chain it was
// paid on. Every supported chain is present, zero when it has no activity.
func (s *Service) GetPoolTotals(ctx context.Context) (map[models.Chain]models.PoolTotals, error) {
	totals := make(map[models.Chain]models.PoolTotals, len(models.SupportedChains))
	for _, c := range models.SupportedChains {
		totals[c] = models.PoolTotals{Total: decimal.Zero, Locked: decimal.Zero}
	}

	if err := s.journalBalances(ctx, accountPoolLiquidity, func(c models.Chain, balance decimal.Decimal) {
		t := totals[c]
		t.Total = t.Total.Add(balance)
		totals[c] = t
	}); err != nil {
		return nil, fmt.Errorf("failed to total pool liquidity: %w", err)
	}

	if err := s.journalBalances(ctx, accountPoolLocked, func(c models.Chain, balance decimal.Decimal) {
		t := totals[c]
		t.Total = t.Total.Add(balance)
		t.Locked = t.Locked.Add(balance)
		totals[c] = t
	}); err != nil {
		return nil, fmt.Errorf("failed to total locked liquidity: %w", err)
	}

	for c, t := range totals {
		zap.L().Debug("Pool totals",
			zap.String("chain", string(c)),
			zap.String("total", t.Total.String()),
			zap.String("locked", t.Locked.String()))
	}
	return totals, nil
}

// journalBalances reports debit minus credit of one account type, per journal line
func (s *Service) journalBalances(ctx context.Context, accountType string, add func(models.Chain, decimal.Decimal)) error {
	rows, err := s.db.QueryContext(ctx, queryGetAllJournalAccount, accountType)
	if err != nil {
		return err
	}
	defer closeRows(rows)

	for rows.Next() {
		var chain, debitStr, creditStr string
		if err := rows.Scan(&chain, &debitStr, &creditStr); err != nil {
			return err
		}
		debit, err := parseDecimal("debit_amount", debitStr)
		if err != nil {
			return err
		}
		credit, err := parseDecimal("credit_amount", creditStr)
		if err != nil {
			return err
		}
		add(models.Chain(chain), debit.Sub(credit))
	}
	return rows.Err()
}

// poolLiquidity is the free journal balance of one chain's pool
func poolLiquidity(ctx context.Context, q queryer, chain models.Chain) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, queryGetJournalAccountByChain, string(chain), accountPoolLiquidity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query pool liquidity: %w", err)
	}
	defer closeRows(rows)

	balance := decimal.Zero
	for rows.Next() {
		var debitStr, creditStr string
		if err := rows.Scan(&debitStr, &creditStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan pool liquidity: %w", err)
		}
		debit, err := parseDecimal("debit_amount", debitStr)
		if err != nil {
			return decimal.Zero, err
		}
		credit, err := parseDecimal("credit_amount", creditStr)
		if err != nil {
			return decimal.Zero, err
		}
		balance = balance.Add(debit).Sub(credit)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating pool liquidity: %w", err)
	}
	return balance, nil
}
