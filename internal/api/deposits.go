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

	"crosschain-lending-go/internal/chain"
	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"go.uber.org/zap"
)

const (
	depositKindLend       = "lend"
	depositKindCollateral = "collateral"
)

// ProcessLendDeposit verifies a transfer into the vault and credits it to the pool
func (s *LedgerService) ProcessLendDeposit(ctx context.Context, req models.DepositRequest) (*models.DepositResponse, error) {
	return s.processDeposit(ctx, depositKindLend, req)
}

// ProcessCollateralDeposit verifies a transfer into the vault and records it as unlocked collateral
func (s *LedgerService) ProcessCollateralDeposit(ctx context.Context, req models.DepositRequest) (*models.DepositResponse, error) {
	return s.processDeposit(ctx, depositKindCollateral, req)
}

func (s *LedgerService) processDeposit(ctx context.Context, kind string, req models.DepositRequest) (*models.DepositResponse, error) {
	c, err := models.ParseChain(req.Chain)
	if err != nil {
		return nil, invalidRequest(err.Error())
	}

	zap.L().Info("Processing deposit",
		zap.String("kind", kind),
		zap.String("chain", string(c)),
		zap.String("tx_hash", req.TxHash))

	transfer, err := s.verifier.VerifyTransfer(ctx, chain.Lookup{TxHash: req.TxHash, Chain: c, Sender: req.Sender})
	if err != nil {
		zap.L().Warn("Deposit verification failed",
			zap.String("kind", kind),
			zap.String("tx_hash", req.TxHash),
			zap.Error(err))
		return nil, err
	}

	params := store.RecordDepositParams{
		TxHash:    transfer.TxHash,
		Chain:     transfer.Chain,
		Amount:    transfer.Amount,
		Address:   transfer.From,
		Timestamp: transfer.BlockTime,
	}
	if kind == depositKindLend {
		_, err = s.store.RecordLendDeposit(ctx, params)
	} else {
		_, err = s.store.RecordCollateralDeposit(ctx, params)
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			zap.L().Info("Duplicate deposit detected",
				zap.String("kind", kind),
				zap.String("tx_hash", transfer.TxHash))
		} else {
			zap.L().Error("Deposit processing failed",
				zap.String("kind", kind),
				zap.String("tx_hash", transfer.TxHash),
				zap.Error(err))
		}
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.DepositRecorded(kind, transfer.Chain)
	}

	zap.L().Info("Deposit processed successfully",
		zap.String("kind", kind),
		zap.String("account", transfer.From),
		zap.String("chain", string(transfer.Chain)),
		zap.String("amount", transfer.Amount.String()))

	return &models.DepositResponse{
		Account: transfer.From,
		Chain:   transfer.Chain,
		Amount:  transfer.Amount,
		TxHash:  transfer.TxHash,
	}, nil
}
