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

package store

import (
	"context"
	"errors"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrCollateralNotFound     = errors.New("collateral deposit not found")
	ErrCollateralLocked       = errors.New("collateral already locked by an active loan")
	ErrLoanNotFound           = errors.New("loan not found")
	ErrLoanNotActive          = errors.New("loan is not active")
	ErrInsufficientLiquidity  = errors.New("insufficient pool liquidity")
	ErrAddressAlreadyLinked   = errors.New("address already linked")
	ErrInvalidLink            = errors.New("invalid address link")
	ErrLedgerImbalance        = errors.New("ledger imbalance detected")
)

// RecordDepositParams describes a verified on-chain transfer into the pool or collateral vault.
type RecordDepositParams struct {
	TxHash    string
	Chain     models.Chain
	Amount    decimal.Decimal
	Address   string
	Timestamp time.Time
}

// CreateLoanParams carries a loan whose terms are already computed.
// The collateral is locked only if it is still at ExpectedCollateralVersion.
type CreateLoanParams struct {
	Loan                      models.Loan
	ExpectedCollateralVersion int64
	EnforceLiquidity          bool
}

type RepayLoanParams struct {
	LoanId          string
	RepaymentTxHash string
	RepaymentChain  models.Chain
	AmountPaid      decimal.Decimal
	ClosedAt        time.Time
}

type LiquidateLoanParams struct {
	LoanId   string
	ClosedAt time.Time
}

// ReconcileReport compares the journal with the loan table for one chain.
type ReconcileReport struct {
	Chain         models.Chain
	ActiveLocked  decimal.Decimal
	JournalLocked decimal.Decimal
	LendTotal     decimal.Decimal
	JournalLiquid decimal.Decimal
	TotalDebits   decimal.Decimal
	TotalCredits  decimal.Decimal
}

func (r ReconcileReport) Balanced() bool {
	return r.ActiveLocked.Equal(r.JournalLocked) && r.TotalDebits.Equal(r.TotalCredits)
}

// LedgerStore defines the contract that every position ledger backend must satisfy.
type LedgerStore interface {
	// --- Identity ---
	LinkAddress(ctx context.Context, canonical string, chain models.Chain, linked string) (*models.LinkedAddress, error)
	GetLinkedAddresses(ctx context.Context, canonical string) ([]models.LinkedAddress, error)
	ResolveIdentity(ctx context.Context, address string) (*models.Identity, error)

	// --- Deposits ---
	RecordLendDeposit(ctx context.Context, params RecordDepositParams) (*models.LendDeposit, error)
	RecordCollateralDeposit(ctx context.Context, params RecordDepositParams) (*models.CollateralDeposit, error)
	GetLendDeposits(ctx context.Context, lenders []string) ([]models.LendDeposit, error)
	GetCollateralDeposit(ctx context.Context, txHash string) (*models.CollateralDeposit, error)
	GetCollateralDeposits(ctx context.Context, owners []string) ([]models.CollateralDeposit, error)

	// --- Loans ---
	CreateLoan(ctx context.Context, params CreateLoanParams) (*models.Loan, error)
	RepayLoan(ctx context.Context, params RepayLoanParams) (*models.Loan, error)
	LiquidateLoan(ctx context.Context, params LiquidateLoanParams) (*models.Loan, error)
	GetLoan(ctx context.Context, loanId string) (*models.Loan, error)
	GetLoansByBorrowers(ctx context.Context, borrowers []string) ([]models.Loan, error)
	GetActiveLoans(ctx context.Context) ([]models.Loan, error)

	// --- Pool & audit ---
	GetPoolTotals(ctx context.Context) (map[models.Chain]models.PoolTotals, error)
	GetLedgerHistory(ctx context.Context, addresses []string, limit, offset int) ([]models.LedgerEvent, error)
	ReconcilePool(ctx context.Context, chain models.Chain) (*ReconcileReport, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
