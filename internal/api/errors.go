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

package api

import (
	"context"
	"errors"
	"net/http"

	"crosschain-lending-go/internal/chain"
	"crosschain-lending-go/internal/loan"
	"crosschain-lending-go/internal/pricing"
	"crosschain-lending-go/internal/store"
)

var ErrInvalidRequest = errors.New("invalid request")

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return ErrInvalidRequest }

func invalidRequest(msg string) error {
	return &requestError{msg: msg}
}

// classify maps an error to the HTTP status and the message shown to the caller.
// Internal errors keep their detail in the logs only.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, loan.ErrInvalidRequest),
		errors.Is(err, loan.ErrInsufficientCollateral),
		errors.Is(err, loan.ErrInsufficientRepayment),
		errors.Is(err, loan.ErrCollateralNotOwned),
		errors.Is(err, store.ErrInvalidLink),
		errors.Is(err, chain.ErrWrongRecipient),
		errors.Is(err, chain.ErrTransferFailed),
		errors.Is(err, chain.ErrUnsupportedChain),
		errors.Is(err, chain.ErrSenderRequired):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, store.ErrCollateralNotFound),
		errors.Is(err, store.ErrLoanNotFound),
		errors.Is(err, chain.ErrTransferNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, store.ErrDuplicateTransaction),
		errors.Is(err, store.ErrCollateralLocked),
		errors.Is(err, store.ErrLoanNotActive),
		errors.Is(err, store.ErrConcurrentModification),
		errors.Is(err, store.ErrInsufficientLiquidity),
		errors.Is(err, store.ErrAddressAlreadyLinked),
		errors.Is(err, loan.ErrNotLiquidatable),
		errors.Is(err, chain.ErrInsufficientConfirmations):
		return http.StatusConflict, err.Error()

	case errors.Is(err, pricing.ErrPriceUnavailable):
		return http.StatusServiceUnavailable, "price feed unavailable"

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"

	default:
		return http.StatusInternalServerError, "internal error"
	}
}
