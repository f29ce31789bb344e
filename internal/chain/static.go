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
	"fmt"
	"os"
	"sync"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// StaticVerifier answers from a fixed set of transfers, for local runs and tests
type StaticVerifier struct {
	mu        sync.RWMutex
	transfers map[string]Transfer
}

func NewStaticVerifier(transfers ...Transfer) *StaticVerifier {
	v := &StaticVerifier{transfers: make(map[string]Transfer)}
	for _, t := range transfers {
		v.Add(t)
	}
	return v
}

func staticKey(c models.Chain, txHash string) string {
	return string(c) + "/" + models.NormalizeTxHash(txHash)
}

func (v *StaticVerifier) Add(t Transfer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t.TxHash = models.NormalizeTxHash(t.TxHash)
	t.From = models.NormalizeAddress(t.From)
	if t.BlockTime.IsZero() {
		t.BlockTime = time.Now().UTC()
	}
	v.transfers[staticKey(t.Chain, t.TxHash)] = t
}

func (v *StaticVerifier) VerifyTransfer(_ context.Context, lookup Lookup) (*Transfer, error) {
	if !lookup.Chain.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, lookup.Chain)
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.transfers[staticKey(lookup.Chain, lookup.TxHash)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, lookup.TxHash)
	}
	return &t, nil
}

type staticTransferFile struct {
	Transfers []struct {
		TxHash string `yaml:"tx_hash"`
		Chain  string `yaml:"chain"`
		From   string `yaml:"from"`
		To     string `yaml:"to"`
		Amount string `yaml:"amount"`
	} `yaml:"transfers"`
}

// LoadStaticVerifier reads transfers from a YAML file of the form
//
//	transfers:
//	  - tx_hash: 0xabc
//	    chain: eth
//	    from: 0xalice
//	    amount: "2"
func LoadStaticVerifier(path string) (*StaticVerifier, error) {
	v := NewStaticVerifier()
	if path == "" {
		return v, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read static transfers: %w", err)
	}
	var file staticTransferFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse static transfers: %w", err)
	}

	for i, entry := range file.Transfers {
		c, err := models.ParseChain(entry.Chain)
		if err != nil {
			return nil, fmt.Errorf("transfer %d: %w", i, err)
		}
		amount, err := decimal.NewFromString(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("transfer %d: invalid amount %q: %w", i, entry.Amount, err)
		}
		v.Add(Transfer{TxHash: entry.TxHash, Chain: c, From: entry.From, To: entry.To, Amount: amount})
	}
	return v, nil
}
