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

	"crosschain-lending-go/internal/chain"
	"crosschain-lending-go/internal/loan"
	"crosschain-lending-go/internal/models"

	"go.uber.org/zap"
)

// RequestBorrow opens a loan against a collateral deposit
func (s *LedgerService) RequestBorrow(ctx context.Context, req models.BorrowRequest) (*models.BorrowResponse, error) {
	c, err := models.ParseChain(req.BorrowChain)
	if err != nil {
		return nil, invalidRequest(err.Error())
	}

	result, err := s.engine.CreateLoan(ctx, loan.BorrowRequest{
		Borrower:         req.Borrower,
		CollateralTxHash: req.CollateralTxHash,
		BorrowChain:      c,
		BorrowAmount:     req.BorrowAmount,
	})
	if err != nil {
		zap.L().Info("Borrow request rejected",
			zap.String("borrower", req.Borrower),
			zap.String("collateral_tx_hash", req.CollateralTxHash),
			zap.Error(err))
		return nil, err
	}

	l := result.Loan
	return &models.BorrowResponse{
		LoanId:               l.Id,
		Borrower:             l.BorrowerAddress,
		BorrowAmount:         l.BorrowAmount,
		BorrowChain:          l.BorrowChain,
		InterestAmount:       l.InterestAmount,
		TotalRepaymentAmount: l.TotalRepaymentAmount,
		DueDate:              l.DueDate,
		CollateralInfo: models.CollateralInfo{
			TxHash:   result.Collateral.TxHash,
			Chain:    result.Collateral.Chain,
			Amount:   result.Collateral.Amount,
			ValueUSD: result.CollateralValueUSD.Round(2),
		},
		CollateralRatio: result.CollateralRatio.Round(4),
		LoanTermMonths:  l.LoanTermMonths,
		InterestRate:    l.InterestRate,
	}, nil
}

// RepayLoan verifies the repayment transfer on chain and closes the loan
func (s *LedgerService) RepayLoan(ctx context.Context, req models.RepayRequest) (*models.RepayResponse, error) {
	c, err := models.ParseChain(req.RepaymentChain)
	if err != nil {
		return nil, invalidRequest(err.Error())
	}

	transfer, err := s.verifier.VerifyTransfer(ctx, chain.Lookup{TxHash: req.RepaymentTxHash, Chain: c, Sender: req.Sender})
	if err != nil {
		zap.L().Warn("Repayment verification failed",
			zap.String("loan_id", req.LoanId),
			zap.String("repayment_tx_hash", req.RepaymentTxHash),
			zap.Error(err))
		return nil, err
	}

	result, err := s.engine.RepayLoan(ctx, loan.RepayRequest{
		LoanId:          req.LoanId,
		RepaymentTxHash: transfer.TxHash,
		RepaymentChain:  transfer.Chain,
		PaidAmount:      transfer.Amount,
	})
	if err != nil {
		zap.L().Info("Repayment rejected",
			zap.String("loan_id", req.LoanId),
			zap.String("repayment_tx_hash", transfer.TxHash),
			zap.Error(err))
		return nil, err
	}

	return &models.RepayResponse{
		LoanId:           result.Loan.Id,
		Status:           result.Loan.Status,
		RepaymentTxHash:  result.Loan.RepaymentTxHash,
		RepaymentChain:   result.Loan.RepaymentChain,
		AmountPaid:       result.AmountPaid,
		CollateralTxHash: result.Loan.CollateralTxHash,
		ClosedAt:         result.Loan.ClosedAt,
	}, nil
}
