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

package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine errors. Ledger conditions are re-exported so callers only need this package.
var (
	ErrInvalidRequest          = errors.New("invalid loan request")
	ErrCollateralNotOwned      = errors.New("collateral not owned by borrower")
	ErrInsufficientCollateral  = errors.New("insufficient collateral")
	ErrInsufficientRepayment   = errors.New("repayment does not cover amount due")
	ErrNotLiquidatable         = errors.New("loan is not past its liquidation deadline")
	ErrCollateralNotFound      = store.ErrCollateralNotFound
	ErrCollateralAlreadyLocked = store.ErrCollateralLocked
	ErrLoanNotFound            = store.ErrLoanNotFound
	ErrLoanNotActive           = store.ErrLoanNotActive
	ErrInsufficientLiquidity   = store.ErrInsufficientLiquidity
)

// PriceProvider yields one consistent snapshot per call
type PriceProvider interface {
	CurrentPrices(ctx context.Context) (models.PriceSnapshot, error)
}

// Recorder receives loan lifecycle counts; nil is allowed
type Recorder interface {
	LoanCreated(chain models.Chain)
	LoanRepaid(chain models.Chain)
	LoanLiquidated(chain models.Chain)
}

type BorrowRequest struct {
	Borrower         string
	CollateralTxHash string
	BorrowChain      models.Chain
	BorrowAmount     decimal.Decimal
}

type BorrowResult struct {
	Loan               *models.Loan
	Collateral         *models.CollateralDeposit
	CollateralValueUSD decimal.Decimal
	BorrowValueUSD     decimal.Decimal
	CollateralRatio    decimal.Decimal
	Prices             models.PriceSnapshot
}

// RepayRequest carries a verified repayment. PaidAmount is in RepaymentChain units;
// zero skips the sufficiency check.
type RepayRequest struct {
	LoanId          string
	RepaymentTxHash string
	RepaymentChain  models.Chain
	PaidAmount      decimal.Decimal
}

type RepayResult struct {
	Loan       *models.Loan
	AmountPaid decimal.Decimal
	AmountDue  decimal.Decimal
}

type Engine struct {
	store    store.LedgerStore
	prices   PriceProvider
	policy   models.LendingPolicy
	recorder Recorder
	now      func() time.Time
	newId    func() string
}

func NewEngine(s store.LedgerStore, prices PriceProvider, policy models.LendingPolicy, recorder Recorder) *Engine {
	return &Engine{
		store:    s,
		prices:   prices,
		policy:   policy,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
		newId:    func() string { return uuid.New().String() },
	}
}

func (r BorrowRequest) validate() error {
	if models.NormalizeAddress(r.Borrower) == "" {
		return fmt.Errorf("%w: borrower is required", ErrInvalidRequest)
	}
	if models.NormalizeTxHash(r.CollateralTxHash) == "" {
		return fmt.Errorf("%w: collateral transaction hash is required", ErrInvalidRequest)
	}
	if !r.BorrowChain.Valid() {
		return fmt.Errorf("%w: unsupported borrow chain %q", ErrInvalidRequest, r.BorrowChain)
	}
	if !r.BorrowAmount.IsPositive() {
		return fmt.Errorf("%w: borrow amount must be positive", ErrInvalidRequest)
	}
	return nil
}

// CreateLoan checks ownership, lock state and collateral ratio, then asks the ledger to
// lock the collateral and insert the loan in one transaction.
func (e *Engine) CreateLoan(ctx context.Context, req BorrowRequest) (*BorrowResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	identity, err := e.store.ResolveIdentity(ctx, req.Borrower)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve borrower: %w", err)
	}

	collateral, err := e.store.GetCollateralDeposit(ctx, req.CollateralTxHash)
	if err != nil {
		return nil, err
	}
	if !identity.Contains(collateral.OwnerAddress) {
		return nil, fmt.Errorf("%w: %s belongs to %s", ErrCollateralNotOwned, collateral.TxHash, collateral.OwnerAddress)
	}
	if collateral.IsLocked {
		return nil, fmt.Errorf("%w: %s", ErrCollateralAlreadyLocked, collateral.TxHash)
	}

	prices, err := e.prices.CurrentPrices(ctx)
	if err != nil {
		return nil, err
	}

	collateralUSD := prices.ValueUSD(collateral.Chain, collateral.Amount)
	borrowUSD := prices.ValueUSD(req.BorrowChain, req.BorrowAmount)
	ratio := CollateralRatio(collateralUSD, borrowUSD)
	if ratio.LessThan(e.policy.MinCollateralRatio) {
		zap.L().Info("Borrow rejected for collateral ratio",
			zap.String("borrower", identity.Requested),
			zap.String("collateral_tx_hash", collateral.TxHash),
			zap.String("ratio", ratio.StringFixed(4)),
			zap.String("required", e.policy.MinCollateralRatio.String()))
		return nil, fmt.Errorf("%w: ratio %s below required %s",
			ErrInsufficientCollateral, ratio.StringFixed(4), e.policy.MinCollateralRatio)
	}

	terms := ComputeTerms(e.policy, req.BorrowAmount, e.now())
	loan := models.Loan{
		Id:                   e.newId(),
		BorrowerAddress:      identity.Requested,
		CollateralTxHash:     collateral.TxHash,
		BorrowChain:          req.BorrowChain,
		BorrowAmount:         req.BorrowAmount,
		InterestRate:         terms.InterestRate,
		LoanTermMonths:       terms.LoanTermMonths,
		InterestAmount:       terms.InterestAmount,
		TotalRepaymentAmount: terms.TotalRepaymentAmount,
		StartTime:            terms.StartTime,
		DueDate:              terms.DueDate,
	}

	created, err := e.store.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      loan,
		ExpectedCollateralVersion: collateral.Version,
		EnforceLiquidity:          e.policy.EnforceLiquidity,
	})
	if errors.Is(err, store.ErrConcurrentModification) {
		// lost a race: report the state the winner left behind
		if current, getErr := e.store.GetCollateralDeposit(ctx, collateral.TxHash); getErr == nil && current.IsLocked {
			return nil, fmt.Errorf("%w: %s", ErrCollateralAlreadyLocked, collateral.TxHash)
		}
	}
	if err != nil {
		return nil, err
	}

	if e.recorder != nil {
		e.recorder.LoanCreated(created.BorrowChain)
	}

	locked := *collateral
	locked.IsLocked = true
	locked.Version++

	return &BorrowResult{
		Loan:               created,
		Collateral:         &locked,
		CollateralValueUSD: collateralUSD,
		BorrowValueUSD:     borrowUSD,
		CollateralRatio:    ratio,
		Prices:             prices,
	}, nil
}

// RepayLoan closes an active loan. A cross-chain repayment is converted at the current
// snapshot and may fall short by at most the policy tolerance.
func (e *Engine) RepayLoan(ctx context.Context, req RepayRequest) (*RepayResult, error) {
	if req.LoanId == "" {
		return nil, fmt.Errorf("%w: loan id is required", ErrInvalidRequest)
	}
	if models.NormalizeTxHash(req.RepaymentTxHash) == "" {
		return nil, fmt.Errorf("%w: repayment transaction hash is required", ErrInvalidRequest)
	}
	if !req.RepaymentChain.Valid() {
		return nil, fmt.Errorf("%w: unsupported repayment chain %q", ErrInvalidRequest, req.RepaymentChain)
	}

	loan, err := e.store.GetLoan(ctx, req.LoanId)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, fmt.Errorf("%w: loan %s is %s", ErrLoanNotActive, loan.Id, loan.Status)
	}

	due, err := e.AmountDue(ctx, loan, req.RepaymentChain)
	if err != nil {
		return nil, err
	}
	paid := req.PaidAmount
	if paid.IsPositive() {
		minimum := due
		if req.RepaymentChain != loan.BorrowChain {
			minimum = due.Mul(decimal.NewFromInt(1).Sub(e.policy.RepaymentTolerance))
		}
		if req.PaidAmount.LessThan(minimum) {
			return nil, fmt.Errorf("%w: paid %s %s, due %s",
				ErrInsufficientRepayment, req.PaidAmount, req.RepaymentChain.Symbol(), due.StringFixed(8))
		}
	} else {
		paid = due
	}

	repaid, err := e.store.RepayLoan(ctx, store.RepayLoanParams{
		LoanId:          loan.Id,
		RepaymentTxHash: req.RepaymentTxHash,
		RepaymentChain:  req.RepaymentChain,
		AmountPaid:      paid,
		ClosedAt:        e.now(),
	})
	if err != nil {
		return nil, err
	}

	if e.recorder != nil {
		e.recorder.LoanRepaid(repaid.BorrowChain)
	}

	return &RepayResult{Loan: repaid, AmountPaid: paid, AmountDue: due}, nil
}

// AmountDue is the total repayment expressed in the given chain's units
func (e *Engine) AmountDue(ctx context.Context, loan *models.Loan, chain models.Chain) (decimal.Decimal, error) {
	if chain == loan.BorrowChain {
		return loan.TotalRepaymentAmount, nil
	}

	prices, err := e.prices.CurrentPrices(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	repayPrice, err := prices.Price(chain)
	if err != nil {
		return decimal.Zero, err
	}
	return prices.ValueUSD(loan.BorrowChain, loan.TotalRepaymentAmount).Div(repayPrice), nil
}

// Liquidate closes an active loan once now is past dueDate plus the grace period
func (e *Engine) Liquidate(ctx context.Context, loanId string, now time.Time) (*models.Loan, error) {
	loan, err := e.store.GetLoan(ctx, loanId)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, fmt.Errorf("%w: loan %s is %s", ErrLoanNotActive, loan.Id, loan.Status)
	}

	deadline := loan.DueDate.Add(e.policy.GracePeriod)
	if !now.After(deadline) {
		return nil, fmt.Errorf("%w: deadline %s", ErrNotLiquidatable, deadline.Format(time.RFC3339))
	}

	liquidated, err := e.store.LiquidateLoan(ctx, store.LiquidateLoanParams{LoanId: loan.Id, ClosedAt: now})
	if err != nil {
		return nil, err
	}

	if e.recorder != nil {
		e.recorder.LoanLiquidated(liquidated.BorrowChain)
	}
	return liquidated, nil
}

// LiquidateOverdue sweeps every active loan past its deadline. Loans closed concurrently
// are skipped; other failures are collected and do not stop the sweep.
func (e *Engine) LiquidateOverdue(ctx context.Context, now time.Time) ([]models.Loan, error) {
	active, err := e.store.GetActiveLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to list active loans: %w", err)
	}

	liquidated := make([]models.Loan, 0)
	var errs []error
	for _, l := range active {
		if !now.After(l.DueDate.Add(e.policy.GracePeriod)) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		loan, err := e.Liquidate(ctx, l.Id, now)
		if errors.Is(err, ErrLoanNotActive) || errors.Is(err, store.ErrConcurrentModification) {
			zap.L().Info("Loan closed before liquidation", zap.String("loan_id", l.Id))
			continue
		}
		if err != nil {
			zap.L().Error("Failed to liquidate loan", zap.String("loan_id", l.Id), zap.Error(err))
			errs = append(errs, fmt.Errorf("loan %s: %w", l.Id, err))
			continue
		}
		liquidated = append(liquidated, *loan)
	}

	return liquidated, errors.Join(errs...)
}
