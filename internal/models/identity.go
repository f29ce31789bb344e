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

import "sort"

// Identity is the resolved set of addresses belonging to one user.
// It is computed once per request and never cached.
type Identity struct {
	Requested string
	Canonical string
	Linked    map[Chain]string
}

func NewIdentity(requested, canonical string) *Identity {
	return &Identity{
		Requested: requested,
		Canonical: canonical,
		Linked:    make(map[Chain]string),
	}
}

// Addresses returns the canonical address followed by linked addresses in chain order
func (i *Identity) Addresses() []string {
	addresses := []string{i.Canonical}
	addresses = append(addresses, i.LinkedAddresses()...)
	return addresses
}

// LinkedAddresses returns the linked addresses only, ordered by chain
func (i *Identity) LinkedAddresses() []string {
	linked := make([]string, 0, len(i.Linked))
	for _, c := range SupportedChains {
		if addr, ok := i.Linked[c]; ok {
			linked = append(linked, addr)
		}
	}
	// chains outside SupportedChains should not exist, keep them deterministic anyway
	var extra []string
	for c, addr := range i.Linked {
		if !c.Valid() {
			extra = append(extra, addr)
		}
	}
	sort.Strings(extra)
	return append(linked, extra...)
}

func (i *Identity) Contains(address string) bool {
	address = NormalizeAddress(address)
	for _, a := range i.Addresses() {
		if a == address {
			return true
		}
	}
	return false
}
