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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "active"
	LoanStatusRepaid     LoanStatus = "repaid"
	LoanStatusLiquidated LoanStatus = "liquidated"
)

// Ledger event types
const (
	EventLendDeposit       = "lend_deposit"
	EventCollateralDeposit = "collateral_deposit"
	EventBorrow            = "borrow"
	EventRepay             = "repay"
	EventLiquidate         = "liquidate"
)

// LinkedAddress associates a secondary chain address with a canonical address
type LinkedAddress struct {
	Id               string    `db:"id"`
	CanonicalAddress string    `db:"canonical_address"`
	Chain            Chain     `db:"chain"`
	LinkedAddress    string    `db:"linked_address"`
	CreatedAt        time.Time `db:"created_at"`
}

// CollateralDeposit is keyed by the on-chain transaction that funded it
type CollateralDeposit struct {
	TxHash       string          `db:"tx_hash"`
	Chain        Chain           `db:"chain"`
	Amount       decimal.Decimal `db:"amount"`
	OwnerAddress string          `db:"owner_address"`
	IsLocked     bool            `db:"is_locked"`
	Version      int64           `db:"version"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// LendDeposit contributes liquidity to the pool of its chain
type LendDeposit struct {
	TxnHash       string          `db:"txn_hash"`
	Chain         Chain           `db:"chain"`
	Amount        decimal.Decimal `db:"amount"`
	LenderAddress string          `db:"lender_address"`
	Timestamp     time.Time       `db:"timestamp"`
}

// Loan terms are fixed at creation; only Status and the closing fields change afterwards
type Loan struct {
	Id                   string          `db:"id"`
	BorrowerAddress      string          `db:"borrower_address"`
	CollateralTxHash     string          `db:"collateral_tx_hash"`
	BorrowChain          Chain           `db:"borrow_chain"`
	BorrowAmount         decimal.Decimal `db:"borrow_amount"`
	InterestRate         decimal.Decimal `db:"interest_rate"`
	LoanTermMonths       int             `db:"loan_term_months"`
	InterestAmount       decimal.Decimal `db:"interest_amount"`
	TotalRepaymentAmount decimal.Decimal `db:"total_repayment_amount"`
	StartTime            time.Time       `db:"start_time"`
	DueDate              time.Time       `db:"due_date"`
	Status               LoanStatus      `db:"status"`
	RepaymentTxHash      string          `db:"repayment_tx_hash"`
	RepaymentChain       Chain           `db:"repayment_chain"`
	ClosedAt             time.Time       `db:"closed_at"`
	Version              int64           `db:"version"`
}

// IsOverdue reports whether an active loan is past its due date
func (l Loan) IsOverdue(now time.Time) bool {
	return l.Status == LoanStatusActive && now.After(l.DueDate)
}

// LedgerEvent is the immutable audit record of a position change
type LedgerEvent struct {
	Id               string          `db:"id" json:"id"`
	EventType        string          `db:"event_type" json:"eventType"`
	TxHash           string          `db:"tx_hash" json:"txHash,omitempty"`
	Chain            Chain           `db:"chain" json:"chain"`
	Address          string          `db:"address" json:"address"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	LoanId           string          `db:"loan_id" json:"loanId,omitempty"`
	CollateralTxHash string          `db:"collateral_tx_hash" json:"collateralTxHash,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
}

// PoolTotals is the raw per-chain liquidity state before pricing
type PoolTotals struct {
	Total  decimal.Decimal
	Locked decimal.Decimal
}

// Available may go negative only if liquidity checks were disabled
func (p PoolTotals) Available() decimal.Decimal {
	return p.Total.Sub(p.Locked)
}
