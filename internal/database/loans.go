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
	"time"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"go.uber.org/zap"
)

// CreateLoan locks the collateral and inserts the loan in one transaction.
// The lock is an optimistic update on (is_locked = 0, version); when it matches
// no row the current state decides which error the caller sees.
func (s *Service) CreateLoan(ctx context.Context, params store.CreateLoanParams) (*models.Loan, error) {
	loan := params.Loan
	loan.CollateralTxHash = models.NormalizeTxHash(loan.CollateralTxHash)
	loan.BorrowerAddress = models.NormalizeAddress(loan.BorrowerAddress)
	loan.Status = models.LoanStatusActive
	loan.Version = 1

	if loan.Id == "" {
		return nil, fmt.Errorf("loan id cannot be empty")
	}
	if !loan.BorrowAmount.IsPositive() {
		return nil, fmt.Errorf("borrow amount must be positive, got %s", loan.BorrowAmount)
	}
	if !loan.BorrowChain.Valid() {
		return nil, fmt.Errorf("unsupported borrow chain: %q", loan.BorrowChain)
	}

	zap.L().Info("Creating loan",
		zap.String("loan_id", loan.Id),
		zap.String("borrower", loan.BorrowerAddress),
		zap.String("collateral_tx_hash", loan.CollateralTxHash),
		zap.String("borrow_chain", string(loan.BorrowChain)),
		zap.String("borrow_amount", loan.BorrowAmount.String()),
		zap.Int64("expected_version", params.ExpectedCollateralVersion))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	result, err := tx.ExecContext(ctx, queryLockCollateral, formatTime(now), loan.CollateralTxHash, params.ExpectedCollateralVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to lock collateral: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var locked bool
		err := tx.QueryRowContext(ctx, queryGetCollateralLockState, loan.CollateralTxHash).Scan(&locked)
		switch {
		case err == sql.ErrNoRows:
			return nil, fmt.Errorf("%w: %s", store.ErrCollateralNotFound, loan.CollateralTxHash)
		case err != nil:
			return nil, fmt.Errorf("failed to read collateral lock state: %w", err)
		case locked:
			return nil, fmt.Errorf("%w: %s", store.ErrCollateralLocked, loan.CollateralTxHash)
		default:
			return nil, fmt.Errorf("collateral lock failed - %w", store.ErrConcurrentModification)
		}
	}

	if params.EnforceLiquidity {
		available, err := poolLiquidity(ctx, tx, loan.BorrowChain)
		if err != nil {
			return nil, err
		}
		if loan.BorrowAmount.GreaterThan(available) {
			zap.L().Warn("Borrow exceeds available liquidity",
				zap.String("borrow_chain", string(loan.BorrowChain)),
				zap.String("requested", loan.BorrowAmount.String()),
				zap.String("available", available.String()))
			return nil, fmt.Errorf("%w: requested %s %s, available %s",
				store.ErrInsufficientLiquidity, loan.BorrowAmount, loan.BorrowChain.Symbol(), available)
		}
	}

	_, err = tx.ExecContext(ctx, queryInsertLoan,
		loan.Id, loan.BorrowerAddress, loan.CollateralTxHash, string(loan.BorrowChain), loan.BorrowAmount.String(),
		loan.InterestRate.String(), loan.LoanTermMonths, loan.InterestAmount.String(), loan.TotalRepaymentAmount.String(),
		formatTime(loan.StartTime), formatTime(loan.DueDate), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrCollateralLocked, loan.CollateralTxHash)
		}
		return nil, fmt.Errorf("failed to insert loan: %w", err)
	}

	event := &models.LedgerEvent{
		EventType:        models.EventBorrow,
		Chain:            loan.BorrowChain,
		Address:          loan.BorrowerAddress,
		Amount:           loan.BorrowAmount,
		LoanId:           loan.Id,
		CollateralTxHash: loan.CollateralTxHash,
		CreatedAt:        now,
	}
	if err := s.journal.Record(ctx, tx, event, borrowEntries(&loan)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Loan created successfully",
		zap.String("loan_id", loan.Id),
		zap.String("total_repayment", loan.TotalRepaymentAmount.String()),
		zap.Time("due_date", loan.DueDate))
	return &loan, nil
}

// RepayLoan closes an active loan and releases its collateral exactly once
func (s *Service) RepayLoan(ctx context.Context, params store.RepayLoanParams) (*models.Loan, error) {
	repaymentHash := models.NormalizeTxHash(params.RepaymentTxHash)
	if repaymentHash == "" {
		return nil, fmt.Errorf("repayment transaction hash cannot be empty")
	}
	if !params.RepaymentChain.Valid() {
		return nil, fmt.Errorf("unsupported repayment chain: %q", params.RepaymentChain)
	}

	zap.L().Info("Repaying loan",
		zap.String("loan_id", params.LoanId),
		zap.String("repayment_tx_hash", repaymentHash),
		zap.String("repayment_chain", string(params.RepaymentChain)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingId string
	err = tx.QueryRowContext(ctx, queryCheckDuplicateEvent, repaymentHash).Scan(&existingId)
	if err == nil {
		return nil, fmt.Errorf("%w: tx_hash %s already recorded", store.ErrDuplicateTransaction, repaymentHash)
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check for duplicate transaction: %w", err)
	}

	loan, err := s.getLoan(ctx, tx, params.LoanId)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, fmt.Errorf("%w: loan %s is %s", store.ErrLoanNotActive, loan.Id, loan.Status)
	}

	closedAt := params.ClosedAt.UTC()
	if closedAt.IsZero() {
		closedAt = s.now()
	}
	if err := s.closeLoan(ctx, tx, loan, models.LoanStatusRepaid, repaymentHash, params.RepaymentChain, closedAt); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, queryUnlockCollateral, formatTime(closedAt), loan.CollateralTxHash)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock collateral: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("collateral unlock failed - %w", store.ErrConcurrentModification)
	}

	amount := params.AmountPaid
	if !amount.IsPositive() {
		if params.RepaymentChain != loan.BorrowChain {
			return nil, fmt.Errorf("cross-chain repayment of loan %s needs the paid amount", loan.Id)
		}
		amount = loan.TotalRepaymentAmount
	}
	event := &models.LedgerEvent{
		EventType:        models.EventRepay,
		TxHash:           repaymentHash,
		Chain:            params.RepaymentChain,
		Address:          loan.BorrowerAddress,
		Amount:           amount,
		LoanId:           loan.Id,
		CollateralTxHash: loan.CollateralTxHash,
		CreatedAt:        closedAt,
	}
	if err := s.journal.Record(ctx, tx, event, repayEntries(loan, params.RepaymentChain, amount)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Loan repaid successfully",
		zap.String("loan_id", loan.Id),
		zap.String("collateral_tx_hash", loan.CollateralTxHash))
	return loan, nil
}

// LiquidateLoan marks an active loan liquidated. The collateral stays locked as seized.
func (s *Service) LiquidateLoan(ctx context.Context, params store.LiquidateLoanParams) (*models.Loan, error) {
	zap.L().Info("Liquidating loan", zap.String("loan_id", params.LoanId))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := s.getLoan(ctx, tx, params.LoanId)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, fmt.Errorf("%w: loan %s is %s", store.ErrLoanNotActive, loan.Id, loan.Status)
	}

	closedAt := params.ClosedAt.UTC()
	if closedAt.IsZero() {
		closedAt = s.now()
	}
	if err := s.closeLoan(ctx, tx, loan, models.LoanStatusLiquidated, "", "", closedAt); err != nil {
		return nil, err
	}

	event := &models.LedgerEvent{
		EventType:        models.EventLiquidate,
		Chain:            loan.BorrowChain,
		Address:          loan.BorrowerAddress,
		Amount:           loan.BorrowAmount,
		LoanId:           loan.Id,
		CollateralTxHash: loan.CollateralTxHash,
		CreatedAt:        closedAt,
	}
	if err := s.journal.Record(ctx, tx, event, liquidateEntries(loan)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Warn("Loan liquidated",
		zap.String("loan_id", loan.Id),
		zap.String("borrower", loan.BorrowerAddress),
		zap.Time("due_date", loan.DueDate))
	return loan, nil
}

func (s *Service) closeLoan(ctx context.Context, tx queryer, loan *models.Loan, status models.LoanStatus, repaymentHash string, repaymentChain models.Chain, closedAt time.Time) error {
	result, err := tx.ExecContext(ctx, queryCloseLoan,
		string(status), nullString(repaymentHash), nullString(string(repaymentChain)), formatTime(closedAt),
		loan.Id, loan.Version)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan update failed - %w", store.ErrConcurrentModification)
	}

	loan.Status = status
	loan.RepaymentTxHash = repaymentHash
	loan.RepaymentChain = repaymentChain
	loan.ClosedAt = closedAt
	loan.Version++
	return nil
}

func (s *Service) GetLoan(ctx context.Context, loanId string) (*models.Loan, error) {
	return s.getLoan(ctx, s.db, loanId)
}

func (s *Service) getLoan(ctx context.Context, q queryer, loanId string) (*models.Loan, error) {
	loan, err := scanLoan(q.QueryRowContext(ctx, queryGetLoan, loanId))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", store.ErrLoanNotFound, loanId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load loan: %w", err)
	}
	return loan, nil
}

func (s *Service) GetLoansByBorrowers(ctx context.Context, borrowers []string) ([]models.Loan, error) {
	borrowers = normalizeAll(borrowers)
	if len(borrowers) == 0 {
		return make([]models.Loan, 0), nil
	}

	in, args := inClause(borrowers)
	query := `SELECT ` + loanColumns + `
		FROM loans
		WHERE borrower_address IN ` + in + `
		ORDER BY start_time DESC, id`
	return s.queryLoans(ctx, query, args...)
}

func (s *Service) GetActiveLoans(ctx context.Context) ([]models.Loan, error) {
	return s.queryLoans(ctx, queryGetActiveLoans)
}

func (s *Service) queryLoans(ctx context.Context, query string, args ...interface{}) ([]models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query loans: %w", err)
	}
	defer closeRows(rows)

	loans := make([]models.Loan, 0)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan loan row: %w", err)
		}
		loans = append(loans, *loan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loan rows: %w", err)
	}
	return loans, nil
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var l models.Loan
	var chain, borrowAmount, rate, interest, total, start, due, status string
	var repaymentHash, repaymentChain, closedAt sql.NullString
	err := row.Scan(&l.Id, &l.BorrowerAddress, &l.CollateralTxHash, &chain, &borrowAmount,
		&rate, &l.LoanTermMonths, &interest, &total,
		&start, &due, &status, &repaymentHash, &repaymentChain, &closedAt, &l.Version)
	if err != nil {
		return nil, err
	}

	l.BorrowChain = models.Chain(chain)
	l.Status = models.LoanStatus(status)
	l.RepaymentTxHash = repaymentHash.String
	l.RepaymentChain = models.Chain(repaymentChain.String)

	if l.BorrowAmount, err = parseDecimal("borrow_amount", borrowAmount); err != nil {
		return nil, err
	}
	if l.InterestRate, err = parseDecimal("interest_rate", rate); err != nil {
		return nil, err
	}
	if l.InterestAmount, err = parseDecimal("interest_amount", interest); err != nil {
		return nil, err
	}
	if l.TotalRepaymentAmount, err = parseDecimal("total_repayment_amount", total); err != nil {
		return nil, err
	}
	if l.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if l.DueDate, err = parseTime(due); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		if l.ClosedAt, err = parseTime(closedAt.String); err != nil {
			return nil, err
		}
	}
	return &l, nil
}
