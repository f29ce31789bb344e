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

// ApiResponse is the envelope shared by every endpoint
type ApiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ChainBalance carries one amount per supported chain
type ChainBalance struct {
	Eth  decimal.Decimal `json:"eth"`
	Near decimal.Decimal `json:"near"`
}

func (b *ChainBalance) Add(chain Chain, amount decimal.Decimal) {
	switch chain {
	case ChainETH:
		b.Eth = b.Eth.Add(amount)
	case ChainNEAR:
		b.Near = b.Near.Add(amount)
	}
}

func (b ChainBalance) Get(chain Chain) decimal.Decimal {
	switch chain {
	case ChainETH:
		return b.Eth
	case ChainNEAR:
		return b.Near
	default:
		return decimal.Zero
	}
}

type PriceData struct {
	Eth         decimal.Decimal `json:"eth"`
	Near        decimal.Decimal `json:"near"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type CollateralInfo struct {
	TxHash   string          `json:"txHash"`
	Chain    Chain           `json:"chain"`
	Amount   decimal.Decimal `json:"amount"`
	ValueUSD decimal.Decimal `json:"valueUSD"`
}

// Pool

type PoolChainData struct {
	Total           decimal.Decimal `json:"total"`
	Locked          decimal.Decimal `json:"locked"`
	Available       decimal.Decimal `json:"available"`
	UtilizationRate decimal.Decimal `json:"utilizationRate"`
	TotalUSD        decimal.Decimal `json:"totalUSD"`
	LockedUSD       decimal.Decimal `json:"lockedUSD"`
	AvailableUSD    decimal.Decimal `json:"availableUSD"`
}

type PoolSummary struct {
	TotalUSD               decimal.Decimal `json:"totalUSD"`
	LockedUSD              decimal.Decimal `json:"lockedUSD"`
	AvailableUSD           decimal.Decimal `json:"availableUSD"`
	OverallUtilizationRate decimal.Decimal `json:"overallUtilizationRate"`
}

type PoolStatusData struct {
	Timestamp string                   `json:"timestamp"`
	Prices    PriceData                `json:"prices"`
	Pools     map[Chain]*PoolChainData `json:"pools"`
	Summary   PoolSummary              `json:"summary"`
}

// Dashboard

type LentRecord struct {
	Asset             string          `json:"asset"`
	Amount            decimal.Decimal `json:"amount"`
	UsdValue          decimal.Decimal `json:"usdValue"`
	ProjectedEarnings decimal.Decimal `json:"projectedEarnings"`
}

type CollateralRecord struct {
	Asset             string          `json:"asset"`
	Amount            decimal.Decimal `json:"amount"`
	UsdValue          decimal.Decimal `json:"usdValue"`
	ProjectedEarnings decimal.Decimal `json:"projectedEarnings"`
	Locked            bool            `json:"locked"`
	TxHash            string          `json:"txHash"`
}

type BorrowRecord struct {
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	UsdValue decimal.Decimal `json:"usdValue"`
	DueDate  time.Time       `json:"dueDate"`
	LoanId   string          `json:"loanId"`
	Status   LoanStatus      `json:"status"`
}

type DashboardSummary struct {
	TotalLentUSD              decimal.Decimal `json:"totalLentUSD"`
	TotalCollateralUSD        decimal.Decimal `json:"totalCollateralUSD"`
	TotalBorrowedUSD          decimal.Decimal `json:"totalBorrowedUSD"`
	TotalProjectedEarningsUSD decimal.Decimal `json:"totalProjectedEarningsUSD"`
}

type DashboardRecords struct {
	LentRecords       []LentRecord       `json:"lentRecords"`
	CollateralRecords []CollateralRecord `json:"collateralRecords"`
	BorrowRecords     []BorrowRecord     `json:"borrowRecords"`
}

type DashboardUserData struct {
	Address         string           `json:"address"`
	LinkedAddresses []string         `json:"linkedAddresses"`
	Summary         DashboardSummary `json:"summary"`
	Records         DashboardRecords `json:"records"`
	Prices          PriceData        `json:"prices"`
}

// Loans

type LoanSummary struct {
	LoanId               string          `json:"loanId"`
	Borrower             string          `json:"borrower"`
	BorrowAmount         decimal.Decimal `json:"borrowAmount"`
	BorrowChain          Chain           `json:"borrowChain"`
	BorrowValueUSD       decimal.Decimal `json:"borrowValueUSD"`
	InterestRate         decimal.Decimal `json:"interestRate"`
	InterestAmount       decimal.Decimal `json:"interestAmount"`
	TotalRepaymentAmount decimal.Decimal `json:"totalRepaymentAmount"`
	Status               LoanStatus      `json:"status"`
	StartTime            time.Time       `json:"startTime"`
	DueDate              time.Time       `json:"dueDate"`
	IsOverdue            bool            `json:"isOverdue"`
	DaysUntilDue         int             `json:"daysUntilDue"`
	CollateralRatio      decimal.Decimal `json:"collateralRatio"`
	CollateralInfo       CollateralInfo  `json:"collateralInfo"`
}

type UserLoansData struct {
	Address         string        `json:"address"`
	LinkedAddresses []string      `json:"linkedAddresses"`
	TotalLoans      int           `json:"totalLoans"`
	ActiveLoans     int           `json:"activeLoans"`
	Loans           []LoanSummary `json:"loans"`
}

// Collateral

type CollateralStatus struct {
	TxHash       string          `json:"txHash"`
	Chain        Chain           `json:"chain"`
	Amount       decimal.Decimal `json:"amount"`
	ValueUSD     decimal.Decimal `json:"valueUSD"`
	IsLocked     bool            `json:"isLocked"`
	Status       string          `json:"status"`
	OwnerAddress string          `json:"ownerAddress"`
}

type CollateralStatusData struct {
	Address              string             `json:"address"`
	LinkedAddresses      []string           `json:"linkedAddresses"`
	TotalCollaterals     int                `json:"totalCollaterals"`
	AvailableCollaterals int                `json:"availableCollaterals"`
	LockedCollaterals    int                `json:"lockedCollaterals"`
	Collaterals          []CollateralStatus `json:"collaterals"`
	CollateralBalances   ChainBalance       `json:"collateralBalances"`
}

// Lend

type LendEarningsData struct {
	Address               string          `json:"address"`
	TotalBalance          ChainBalance    `json:"totalBalance"`
	AvailableBalance      ChainBalance    `json:"availableBalance"`
	LockedBalance         ChainBalance    `json:"lockedBalance"`
	ProjectedEarnings     ChainBalance    `json:"projectedEarnings"`
	AnnualPercentageYield decimal.Decimal `json:"annualPercentageYield"`
	LoanTermMonths        int             `json:"loanTermMonths"`
	TotalValueUSD         decimal.Decimal `json:"totalValueUSD"`
}

// Actions

type DepositRequest struct {
	TxHash string `json:"txHash" validate:"required,max=128"`
	Chain  string `json:"chain" validate:"required,oneof=eth near"`
	// Sender is required to look up NEAR transactions
	Sender string `json:"sender,omitempty" validate:"omitempty,max=128"`
}

type DepositResponse struct {
	Account string          `json:"account"`
	Chain   Chain           `json:"chain"`
	Amount  decimal.Decimal `json:"amount"`
	TxHash  string          `json:"txHash"`
}

type BorrowRequest struct {
	Borrower         string          `json:"borrower" validate:"required,max=128"`
	CollateralTxHash string          `json:"collateralTxHash" validate:"required,max=128"`
	BorrowChain      string          `json:"borrowChain" validate:"required,oneof=eth near"`
	BorrowAmount     decimal.Decimal `json:"borrowAmount"`
}

type BorrowResponse struct {
	LoanId               string          `json:"loanId"`
	Borrower             string          `json:"borrower"`
	BorrowAmount         decimal.Decimal `json:"borrowAmount"`
	BorrowChain          Chain           `json:"borrowChain"`
	InterestAmount       decimal.Decimal `json:"interestAmount"`
	TotalRepaymentAmount decimal.Decimal `json:"totalRepaymentAmount"`
	DueDate              time.Time       `json:"dueDate"`
	CollateralInfo       CollateralInfo  `json:"collateralInfo"`
	CollateralRatio      decimal.Decimal `json:"collateralRatio"`
	LoanTermMonths       int             `json:"loanTermMonths"`
	InterestRate         decimal.Decimal `json:"interestRate"`
}

type RepayRequest struct {
	LoanId          string `json:"loanId" validate:"required,max=64"`
	RepaymentTxHash string `json:"repaymentTxHash" validate:"required,max=128"`
	RepaymentChain  string `json:"repaymentChain" validate:"required,oneof=eth near"`
	Sender          string `json:"sender,omitempty" validate:"omitempty,max=128"`
}

type RepayResponse struct {
	LoanId           string          `json:"loanId"`
	Status           LoanStatus      `json:"status"`
	RepaymentTxHash  string          `json:"repaymentTxHash"`
	RepaymentChain   Chain           `json:"repaymentChain"`
	AmountPaid       decimal.Decimal `json:"amountPaid"`
	CollateralTxHash string          `json:"collateralTxHash"`
	ClosedAt         time.Time       `json:"closedAt"`
}

// Identity

type LinkAddressRequest struct {
	Address       string `json:"address" validate:"required,max=128"`
	LinkedAddress string `json:"linkedAddress" validate:"required,max=128"`
	Chain         string `json:"chain" validate:"required,oneof=eth near"`
}

type UserProfile struct {
	Id              string           `json:"id"`
	PrimaryAddress  string           `json:"primaryAddress"`
	LinkedAddresses map[Chain]string `json:"linkedAddresses"`
	Verified        bool             `json:"verified"`
	CreatedAt       time.Time        `json:"createdAt"`
	LastUpdated     time.Time        `json:"lastUpdated"`
}

// History

type LedgerHistory struct {
	Address string        `json:"address"`
	Events  []LedgerEvent `json:"events"`
}
