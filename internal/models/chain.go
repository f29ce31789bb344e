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
	"strings"
)

// Chain identifies one of the two chains the protocol operates on
type Chain string

const (
	ChainETH  Chain = "eth"
	ChainNEAR Chain = "near"
)

// SupportedChains lists chains in the order they are reported
var SupportedChains = []Chain{ChainETH, ChainNEAR}

func ParseChain(value string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(value)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported chain: %q", value)
	}
	return c, nil
}

func (c Chain) Valid() bool {
	return c == ChainETH || c == ChainNEAR
}

// Symbol returns the native asset symbol of the chain
func (c Chain) Symbol() string {
	switch c {
	case ChainETH:
		return "ETH"
	case ChainNEAR:
		return "NEAR"
	default:
		return strings.ToUpper(string(c))
	}
}

// Decimals returns the precision of the chain's smallest unit (wei, yoctoNEAR)
func (c Chain) Decimals() int32 {
	switch c {
	case ChainETH:
		return 18
	case ChainNEAR:
		return 24
	default:
		return 0
	}
}

// NormalizeAddress canonicalizes an account identifier for storage and lookups.
// Hex addresses are case-insensitive and NEAR account ids are lower case.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeTxHash lower-cases hex hashes. NEAR hashes are base58 and keep their case.
func NormalizeTxHash(hash string) string {
	h := strings.TrimSpace(hash)
	if strings.HasPrefix(h, "0x") || strings.HasPrefix(h, "0X") {
		return strings.ToLower(h)
	}
	return h
}
