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
	"database/sql"
	"fmt"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Journal account types
const (
	accountPoolLiquidity     = "pool_liquidity"
	accountPoolLocked        = "pool_locked"
	accountLender            = "lender"
	accountCollateralCustody = "collateral_custody"
	accountCollateralOwner   = "collateral_owner"
	accountInterestIncome    = "interest_income"
	accountBadDebt           = "bad_debt"
	accountCrossChainSettled = "cross_chain_settled"
)

type journalEntry struct {
	chain        models.Chain
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// JournalService keeps the double-entry journal that mirrors every ledger event
type JournalService struct{}

func NewJournalService() *JournalService {
	return &JournalService{}
}

func (j *JournalService) InitSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES ledger_events(id),
		chain TEXT NOT NULL,
		account_type TEXT NOT NULL,
		account_id TEXT NOT NULL,
		debit_amount TEXT NOT NULL DEFAULT '0',
		credit_amount TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_event_id ON journal_entries(event_id);
	CREATE INDEX IF NOT EXISTS idx_journal_chain_account ON journal_entries(chain, account_type);
	`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// Record inserts the event and its journal lines inside the caller's transaction.
// A repeated on-chain tx hash is reported as store.ErrDuplicateTransaction.
func (j *JournalService) Record(ctx context.Context, tx queryer, event *models.LedgerEvent, entries []journalEntry) error {
	if event.Id == "" {
		event.Id = uuid.New().String()
	}

	if event.TxHash != "" {
		var existingId string
		err := tx.QueryRowContext(ctx, queryCheckDuplicateEvent, event.TxHash).Scan(&existingId)
		if err == nil {
			zap.L().Warn("Duplicate transaction hash detected",
				zap.String("tx_hash", event.TxHash),
				zap.String("existing_event_id", existingId))
			return fmt.Errorf("%w: tx_hash %s already recorded", store.ErrDuplicateTransaction, event.TxHash)
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check for duplicate transaction: %w", err)
		}
	}

	createdAt := formatTime(event.CreatedAt)
	_, err := tx.ExecContext(ctx, queryInsertLedgerEvent,
		event.Id, event.EventType, nullString(event.TxHash), string(event.Chain), event.Address,
		event.Amount.String(), nullString(event.LoanId), nullString(event.CollateralTxHash), createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: tx_hash %s already recorded", store.ErrDuplicateTransaction, event.TxHash)
		}
		return fmt.Errorf("failed to insert ledger event: %w", err)
	}

	debits, credits := decimal.Zero, decimal.Zero
	for _, entry := range entries {
		debits = debits.Add(entry.debitAmount)
		credits = credits.Add(entry.creditAmount)
	}
	if !debits.Equal(credits) {
		return fmt.Errorf("%w: %s debits %s != credits %s", store.ErrLedgerImbalance, event.EventType, debits, credits)
	}

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), event.Id, string(entry.chain), entry.accountType, entry.accountId,
			entry.debitAmount.String(), entry.creditAmount.String(), createdAt)
		if err != nil {
			return fmt.Errorf("failed to add journal entry: %w", err)
		}
	}

	return nil
}

func lendDepositEntries(d *models.LendDeposit) []journalEntry {
	return []journalEntry{
		{d.Chain, accountPoolLiquidity, string(d.Chain), d.Amount, decimal.Zero},
		{d.Chain, accountLender, d.LenderAddress, decimal.Zero, d.Amount},
	}
}

func collateralDepositEntries(d *models.CollateralDeposit) []journalEntry {
	return []journalEntry{
		{d.Chain, accountCollateralCustody, string(d.Chain), d.Amount, decimal.Zero},
		{d.Chain, accountCollateralOwner, d.OwnerAddress, decimal.Zero, d.Amount},
	}
}

// borrowEntries moves the principal from free liquidity to the locked bucket
func borrowEntries(l *models.Loan) []journalEntry {
	return []journalEntry{
		{l.BorrowChain, accountPoolLocked, string(l.BorrowChain), l.BorrowAmount, decimal.Zero},
		{l.BorrowChain, accountPoolLiquidity, string(l.BorrowChain), decimal.Zero, l.BorrowAmount},
	}
}

// repayEntries return a same-chain repayment to the borrow pool. A cross-chain
// repayment releases the lock on the borrow chain and books what was actually
// paid into the repayment chain's pool, so each chain's lines balance on their own.
func repayEntries(l *models.Loan, paidChain models.Chain, paid decimal.Decimal) []journalEntry {
	if paidChain == l.BorrowChain {
		return []journalEntry{
			{l.BorrowChain, accountPoolLiquidity, string(l.BorrowChain), l.TotalRepaymentAmount, decimal.Zero},
			{l.BorrowChain, accountPoolLocked, string(l.BorrowChain), decimal.Zero, l.BorrowAmount},
			{l.BorrowChain, accountInterestIncome, string(l.BorrowChain), decimal.Zero, l.InterestAmount},
		}
	}
	return []journalEntry{
		{l.BorrowChain, accountCrossChainSettled, l.Id, l.BorrowAmount, decimal.Zero},
		{l.BorrowChain, accountPoolLocked, string(l.BorrowChain), decimal.Zero, l.BorrowAmount},
		{paidChain, accountPoolLiquidity, string(paidChain), paid, decimal.Zero},
		{paidChain, accountCrossChainSettled, l.Id, decimal.Zero, paid},
	}
}

func liquidateEntries(l *models.Loan) []journalEntry {
	return []journalEntry{
		{l.BorrowChain, accountBadDebt, l.BorrowerAddress, l.BorrowAmount, decimal.Zero},
		{l.BorrowChain, accountPoolLocked, string(l.BorrowChain), decimal.Zero, l.BorrowAmount},
	}
}

// ReconcilePool checks the journal against the loan and deposit tables for one chain
func (s *Service) ReconcilePool(ctx context.Context, chain models.Chain) (*store.ReconcileReport, error) {
	report := &store.ReconcileReport{
		Chain:         chain,
		ActiveLocked:  decimal.Zero,
		JournalLocked: decimal.Zero,
		LendTotal:     decimal.Zero,
		JournalLiquid: decimal.Zero,
		TotalDebits:   decimal.Zero,
		TotalCredits:  decimal.Zero,
	}

	var err error
	report.ActiveLocked, err = sumColumn(ctx, s.db, queryGetActiveBorrowAmountsByChain, "borrow_amount", string(chain))
	if err != nil {
		return nil, err
	}
	report.LendTotal, err = sumColumn(ctx, s.db, queryGetLendAmountsByChain, "amount", string(chain))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, queryGetJournalByChain, string(chain))
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var accountType, debitStr, creditStr string
		if err := rows.Scan(&accountType, &debitStr, &creditStr); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		debit, err := parseDecimal("debit_amount", debitStr)
		if err != nil {
			return nil, err
		}
		credit, err := parseDecimal("credit_amount", creditStr)
		if err != nil {
			return nil, err
		}

		report.TotalDebits = report.TotalDebits.Add(debit)
		report.TotalCredits = report.TotalCredits.Add(credit)
		switch accountType {
		case accountPoolLocked:
			report.JournalLocked = report.JournalLocked.Add(debit).Sub(credit)
		case accountPoolLiquidity:
			report.JournalLiquid = report.JournalLiquid.Add(debit).Sub(credit)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}

	if !report.Balanced() {
		zap.L().Error("Pool reconciliation failed",
			zap.String("chain", string(chain)),
			zap.String("active_locked", report.ActiveLocked.String()),
			zap.String("journal_locked", report.JournalLocked.String()),
			zap.String("total_debits", report.TotalDebits.String()),
			zap.String("total_credits", report.TotalCredits.String()))
		return report, fmt.Errorf("%w: chain %s", store.ErrLedgerImbalance, chain)
	}

	zap.L().Info("Pool reconciliation succeeded",
		zap.String("chain", string(chain)),
		zap.String("locked", report.ActiveLocked.String()))
	return report, nil
}

// sumColumn adds up a TEXT amount column; SQLite SUM would go through floats
func sumColumn(ctx context.Context, q queryer, query, field string, args ...interface{}) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query %s: %w", field, err)
	}
	defer closeRows(rows)

	total := decimal.Zero
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan %s: %w", field, err)
		}
		amount, err := parseDecimal(field, value)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating %s rows: %w", field, err)
	}
	return total, nil
}
