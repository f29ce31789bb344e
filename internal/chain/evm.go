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
	"math/big"
	"strings"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// EVMClient is the subset of the Ethereum RPC used to verify deposits
type EVMClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
}

func DialEVMClient(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.DialContext(ctx, trimmed)
}

// EVMVerifier checks plain ETH transfers into the vault address
type EVMVerifier struct {
	client        EVMClient
	vault         common.Address
	confirmations uint64
}

func NewEVMVerifier(client EVMClient, vaultAddress string, confirmations uint64) (*EVMVerifier, error) {
	if client == nil {
		return nil, fmt.Errorf("evm client required")
	}
	if !common.IsHexAddress(vaultAddress) {
		return nil, fmt.Errorf("invalid vault address %q", vaultAddress)
	}
	return &EVMVerifier{
		client:        client,
		vault:         common.HexToAddress(vaultAddress),
		confirmations: confirmations,
	}, nil
}

func (v *EVMVerifier) VerifyTransfer(ctx context.Context, lookup Lookup) (*Transfer, error) {
	if lookup.Chain != models.ChainETH {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, lookup.Chain)
	}
	raw := strings.TrimSpace(lookup.TxHash)
	if len(raw) != 66 || !strings.HasPrefix(raw, "0x") {
		return nil, fmt.Errorf("%w: malformed hash %q", ErrTransferNotFound, lookup.TxHash)
	}
	hash := common.HexToHash(raw)

	tx, pending, err := v.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, hash.Hex())
		}
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("%w: %s is pending", ErrInsufficientConfirmations, hash.Hex())
	}

	receipt, err := v.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: receipt for %s", ErrTransferNotFound, hash.Hex())
		}
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, hash.Hex())
	}

	if tx.To() == nil || *tx.To() != v.vault {
		return nil, fmt.Errorf("%w: %s", ErrWrongRecipient, hash.Hex())
	}
	if tx.Value() == nil || tx.Value().Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s carries no value", ErrTransferFailed, hash.Hex())
	}

	header, err := v.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}
	if header == nil || header.Number == nil || receipt.BlockNumber == nil {
		return nil, fmt.Errorf("block metadata unavailable")
	}
	if v.confirmations > 0 {
		confirmed := new(big.Int).Sub(header.Number, receipt.BlockNumber)
		confirmed.Add(confirmed, big.NewInt(1))
		if confirmed.Cmp(new(big.Int).SetUint64(v.confirmations)) < 0 {
			return nil, fmt.Errorf("%w: have %s want %d", ErrInsufficientConfirmations, confirmed, v.confirmations)
		}
	}

	chainID, err := v.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}

	amount, err := shiftDecimals(tx.Value().String(), models.ChainETH.Decimals())
	if err != nil {
		return nil, err
	}

	blockTime := time.Now().UTC()
	if block, err := v.client.HeaderByNumber(ctx, receipt.BlockNumber); err == nil && block != nil {
		blockTime = time.Unix(int64(block.Time), 0).UTC()
	}

	zap.L().Debug("Verified ETH transfer",
		zap.String("tx_hash", hash.Hex()),
		zap.String("from", from.Hex()),
		zap.String("amount", amount.String()))

	return &Transfer{
		TxHash:    strings.ToLower(hash.Hex()),
		Chain:     models.ChainETH,
		From:      models.NormalizeAddress(from.Hex()),
		To:        models.NormalizeAddress(v.vault.Hex()),
		Amount:    amount,
		BlockTime: blockTime,
	}, nil
}
