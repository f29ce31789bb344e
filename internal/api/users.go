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

	"crosschain-lending-go/internal/models"

	"go.uber.org/zap"
)

// LinkAddress attaches a secondary chain address to the identity of req.Address
func (s *LedgerService) LinkAddress(ctx context.Context, req models.LinkAddressRequest) (*models.UserProfile, error) {
	c, err := models.ParseChain(req.Chain)
	if err != nil {
		return nil, invalidRequest(err.Error())
	}

	link, err := s.store.LinkAddress(ctx, req.Address, c, req.LinkedAddress)
	if err != nil {
		zap.L().Info("Address link rejected",
			zap.String("address", req.Address),
			zap.String("linked_address", req.LinkedAddress),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Address linked",
		zap.String("canonical_address", link.CanonicalAddress),
		zap.String("chain", string(link.Chain)),
		zap.String("linked_address", link.LinkedAddress))
	return s.GetProfile(ctx, link.CanonicalAddress)
}

// GetProfile describes the identity an address belongs to
func (s *LedgerService) GetProfile(ctx context.Context, address string) (*models.UserProfile, error) {
	if err := requireAddress(address); err != nil {
		return nil, err
	}
	identity, err := s.store.ResolveIdentity(ctx, address)
	if err != nil {
		return nil, err
	}
	links, err := s.store.GetLinkedAddresses(ctx, identity.Canonical)
	if err != nil {
		return nil, err
	}

	profile := &models.UserProfile{
		Id:              identity.Canonical,
		PrimaryAddress:  identity.Canonical,
		LinkedAddresses: make(map[models.Chain]string, len(identity.Linked)),
	}
	for c, a := range identity.Linked {
		profile.LinkedAddresses[c] = a
	}
	for i, link := range links {
		if i == 0 || link.CreatedAt.Before(profile.CreatedAt) {
			profile.CreatedAt = link.CreatedAt
		}
		if link.CreatedAt.After(profile.LastUpdated) {
			profile.LastUpdated = link.CreatedAt
		}
	}
	return profile, nil
}
