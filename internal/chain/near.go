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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type nearRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Id      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type nearTxParams struct {
	TxHash          string `json:"tx_hash"`
	SenderAccountId string `json:"sender_account_id"`
	WaitUntil       string `json:"wait_until"`
}

// NearVerifier checks native NEAR transfers into the vault account using the
// JSON-RPC tx method, which needs both the hash and the signer account.
type NearVerifier struct {
	endpoint string
	vault    string
	client   *http.Client
	now      func() time.Time
}

func NewNearVerifier(endpoint, vaultAccount string, client *http.Client) (*NearVerifier, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("near endpoint required")
	}
	if strings.TrimSpace(vaultAccount) == "" {
		return nil, fmt.Errorf("near vault account required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &NearVerifier{
		endpoint: strings.TrimSpace(endpoint),
		vault:    models.NormalizeAddress(vaultAccount),
		client:   client,
		now:      time.Now,
	}, nil
}

func (v *NearVerifier) VerifyTransfer(ctx context.Context, lookup Lookup) (*Transfer, error) {
	if lookup.Chain != models.ChainNEAR {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, lookup.Chain)
	}
	sender := models.NormalizeAddress(lookup.Sender)
	if sender == "" {
		return nil, ErrSenderRequired
	}
	txHash := strings.TrimSpace(lookup.TxHash)
	if txHash == "" {
		return nil, fmt.Errorf("%w: empty hash", ErrTransferNotFound)
	}

	body, err := v.call(ctx, "tx", nearTxParams{TxHash: txHash, SenderAccountId: sender, WaitUntil: "FINAL"})
	if err != nil {
		return nil, err
	}

	if rpcErr := gjson.GetBytes(body, "error"); rpcErr.Exists() {
		cause := rpcErr.Get("cause.name").String()
		if cause == "UNKNOWN_TRANSACTION" || cause == "INVALID_TRANSACTION" {
			return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, txHash)
		}
		return nil, fmt.Errorf("near rpc error: %s %s", rpcErr.Get("name").String(), cause)
	}

	result := gjson.GetBytes(body, "result")
	if !result.Exists() {
		return nil, fmt.Errorf("near rpc response missing result")
	}
	status := result.Get("status")
	if status.Get("Failure").Exists() || !status.Get("SuccessValue").Exists() {
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, txHash)
	}

	receiver := models.NormalizeAddress(result.Get("transaction.receiver_id").String())
	if receiver != v.vault {
		return nil, fmt.Errorf("%w: %s went to %s", ErrWrongRecipient, txHash, receiver)
	}

	total := decimal.Zero
	var parseErr error
	result.Get("transaction.actions").ForEach(func(_, action gjson.Result) bool {
		deposit := action.Get("Transfer.deposit")
		if !deposit.Exists() {
			return true
		}
		amount, err := shiftDecimals(deposit.String(), models.ChainNEAR.Decimals())
		if err != nil {
			parseErr = err
			return false
		}
		total = total.Add(amount)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: %s carries no transfer", ErrTransferFailed, txHash)
	}

	zap.L().Debug("Verified NEAR transfer",
		zap.String("tx_hash", txHash),
		zap.String("from", sender),
		zap.String("amount", total.String()))

	return &Transfer{
		TxHash:    txHash,
		Chain:     models.ChainNEAR,
		From:      models.NormalizeAddress(result.Get("transaction.signer_id").String()),
		To:        receiver,
		Amount:    total,
		BlockTime: v.now().UTC(),
	}, nil
}

func (v *NearVerifier) call(ctx context.Context, method string, params interface{}) ([]byte, error) {
	payload, err := json.Marshal(nearRPCRequest{JSONRPC: "2.0", Id: "lending", Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("unable to encode near rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("unable to build near rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("near rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("unable to read near rpc response: %w", err)
	}
	// the node reports handler errors with a 200 and an error object
	if resp.StatusCode != http.StatusOK && !gjson.GetBytes(body, "error").Exists() {
		return nil, fmt.Errorf("near rpc returned status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("near rpc returned invalid json")
	}
	return body, nil
}
