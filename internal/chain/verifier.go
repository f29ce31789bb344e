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

package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrTransferNotFound          = errors.New("transfer not found on chain")
	ErrTransferFailed            = errors.New("transfer failed on chain")
	ErrWrongRecipient            = errors.New("transfer was not sent to the vault")
	ErrUnsupportedChain          = errors.New("unsupported chain")
	ErrInsufficientConfirmations = errors.New("transfer has not reached required confirmations")
	ErrSenderRequired            = errors.New("sender account is required to look up this transfer")
)

// Transfer is a confirmed native-asset transfer into the protocol vault
type Transfer struct {
	TxHash    string
	Chain     models.Chain
	From      string
	To        string
	Amount    decimal.Decimal
	BlockTime time.Time
}

// Lookup identifies a transfer. Sender is only needed on chains whose RPC
// indexes transactions by signer as well as hash.
type Lookup struct {
	TxHash string
	Chain  models.Chain
	Sender string
}

type Verifier interface {
	VerifyTransfer(ctx context.Context, lookup Lookup) (*Transfer, error)
}

// Router dispatches each lookup to the verifier registered for its chain
type Router struct {
	verifiers map[models.Chain]Verifier
}

func NewRouter() *Router {
	return &Router{verifiers: make(map[models.Chain]Verifier)}
}

func (r *Router) Register(c models.Chain, v Verifier) *Router {
	r.verifiers[c] = v
	return r
}

func (r *Router) VerifyTransfer(ctx context.Context, lookup Lookup) (*Transfer, error) {
	v, ok := r.verifiers[lookup.Chain]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, lookup.Chain)
	}
	return v.VerifyTransfer(ctx, lookup)
}

// shiftDecimals converts an integer base-unit string such as wei into whole units
func shiftDecimals(baseUnits string, decimals int32) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(baseUnits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid base unit amount %q: %w", baseUnits, err)
	}
	return value.Shift(-decimals), nil
}
