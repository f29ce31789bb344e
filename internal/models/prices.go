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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot holds USD prices captured at a single instant.
// All USD conversions within one response must use the same snapshot.
type PriceSnapshot struct {
	ETH         decimal.Decimal
	NEAR        decimal.Decimal
	LastUpdated time.Time
	Source      string
}

func (p PriceSnapshot) Price(chain Chain) (decimal.Decimal, error) {
	switch chain {
	case ChainETH:
		return p.ETH, nil
	case ChainNEAR:
		return p.NEAR, nil
	default:
		return decimal.Zero, fmt.Errorf("no price for chain %q", chain)
	}
}

// ValueUSD converts a native amount; unsupported chains are worth zero
func (p PriceSnapshot) ValueUSD(chain Chain, amount decimal.Decimal) decimal.Decimal {
	price, err := p.Price(chain)
	if err != nil {
		return decimal.Zero
	}
	return amount.Mul(price)
}

// Complete reports whether every supported chain has a positive price
func (p PriceSnapshot) Complete() bool {
	return p.ETH.IsPositive() && p.NEAR.IsPositive()
}

func (p PriceSnapshot) Data() PriceData {
	return PriceData{
		Eth:         p.ETH,
		Near:        p.NEAR,
		LastUpdated: p.LastUpdated,
	}
}
