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
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
)

var monthsPerYear = decimal.NewFromInt(12)

// Terms are fixed at creation and never recomputed
type Terms struct {
	InterestRate         decimal.Decimal
	LoanTermMonths       int
	InterestAmount       decimal.Decimal
	TotalRepaymentAmount decimal.Decimal
	StartTime            time.Time
	DueDate              time.Time
}

// ComputeTerms applies simple interest at the policy's annual rate over the loan term.
// The due date is calendar months after start, so Jan 31 + 1 month normalizes to early March.
func ComputeTerms(policy models.LendingPolicy, borrowAmount decimal.Decimal, start time.Time) Terms {
	months := decimal.NewFromInt(int64(policy.LoanTermMonths))
	interest := borrowAmount.Mul(policy.InterestRate).Mul(months).Div(monthsPerYear)

	start = start.UTC()
	return Terms{
		InterestRate:         policy.InterestRate,
		LoanTermMonths:       policy.LoanTermMonths,
		InterestAmount:       interest,
		TotalRepaymentAmount: borrowAmount.Add(interest),
		StartTime:            start,
		DueDate:              start.AddDate(0, policy.LoanTermMonths, 0),
	}
}

// CollateralRatio is collateral USD over borrowed USD, zero when nothing is borrowed
func CollateralRatio(collateralUSD, borrowUSD decimal.Decimal) decimal.Decimal {
	if !borrowUSD.IsPositive() {
		return decimal.Zero
	}
	return collateralUSD.Div(borrowUSD)
}
