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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkAddress attaches linked to the identity rooted at canonical. If canonical is
// itself a linked address the link is made on its root, so identities stay one level deep.
func (s *Service) LinkAddress(ctx context.Context, canonical string, chain models.Chain, linked string) (*models.LinkedAddress, error) {
	canonical = models.NormalizeAddress(canonical)
	linked = models.NormalizeAddress(linked)

	if canonical == "" || linked == "" {
		return nil, fmt.Errorf("%w: addresses cannot be empty", store.ErrInvalidLink)
	}
	if !chain.Valid() {
		return nil, fmt.Errorf("%w: unsupported chain %q", store.ErrInvalidLink, chain)
	}

	zap.L().Info("Linking address",
		zap.String("canonical_address", canonical),
		zap.String("chain", string(chain)),
		zap.String("linked_address", linked))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	root, err := s.findCanonical(ctx, tx, canonical)
	if err != nil {
		return nil, err
	}
	if root == linked {
		return nil, fmt.Errorf("%w: cannot link an address to itself", store.ErrInvalidLink)
	}

	var childLinks int
	if err := tx.QueryRowContext(ctx, queryCountLinksForCanonical, linked).Scan(&childLinks); err != nil {
		return nil, fmt.Errorf("failed to count existing links: %w", err)
	}
	if childLinks > 0 {
		return nil, fmt.Errorf("%w: %s already has linked addresses", store.ErrAddressAlreadyLinked, linked)
	}

	var existing string
	err = tx.QueryRowContext(ctx, queryGetLinkForChain, root, string(chain)).Scan(&existing)
	switch {
	case err == nil && existing == linked:
		links, err := s.getLinkedAddresses(ctx, tx, root)
		if err != nil {
			return nil, err
		}
		for i := range links {
			if links[i].Chain == chain {
				return &links[i], nil
			}
		}
		return nil, fmt.Errorf("link for %s vanished during lookup", chain)
	case err == nil:
		return nil, fmt.Errorf("%w: %s already has a %s address", store.ErrAddressAlreadyLinked, root, chain)
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("failed to look up existing link: %w", err)
	}

	link := &models.LinkedAddress{
		Id:               uuid.New().String(),
		CanonicalAddress: root,
		Chain:            chain,
		LinkedAddress:    linked,
		CreatedAt:        s.now(),
	}
	_, err = tx.ExecContext(ctx, queryInsertLinkedAddress,
		link.Id, link.CanonicalAddress, string(link.Chain), link.LinkedAddress, formatTime(link.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrAddressAlreadyLinked, linked)
		}
		return nil, fmt.Errorf("unable to insert linked address: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Address linked successfully", zap.String("id", link.Id))
	return link, nil
}

func (s *Service) GetLinkedAddresses(ctx context.Context, canonical string) ([]models.LinkedAddress, error) {
	return s.getLinkedAddresses(ctx, s.db, models.NormalizeAddress(canonical))
}

// ResolveIdentity returns the canonical address and every address linked to it.
// Unknown addresses resolve to a singleton identity.
func (s *Service) ResolveIdentity(ctx context.Context, address string) (*models.Identity, error) {
	requested := models.NormalizeAddress(address)
	if requested == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}

	canonical, err := s.findCanonical(ctx, s.db, requested)
	if err != nil {
		return nil, err
	}

	links, err := s.getLinkedAddresses(ctx, s.db, canonical)
	if err != nil {
		return nil, err
	}

	identity := models.NewIdentity(requested, canonical)
	for _, link := range links {
		identity.Linked[link.Chain] = link.LinkedAddress
	}

	zap.L().Debug("Resolved identity",
		zap.String("address", requested),
		zap.String("canonical_address", canonical),
		zap.Int("linked_count", len(links)))
	return identity, nil
}

func (s *Service) findCanonical(ctx context.Context, q queryer, address string) (string, error) {
	var canonical string
	err := q.QueryRowContext(ctx, queryFindCanonicalForLinked, address).Scan(&canonical)
	if err == sql.ErrNoRows {
		return address, nil
	}
	if err != nil {
		return "", fmt.Errorf("unable to resolve canonical address: %w", err)
	}
	return canonical, nil
}

func (s *Service) getLinkedAddresses(ctx context.Context, q queryer, canonical string) ([]models.LinkedAddress, error) {
	rows, err := q.QueryContext(ctx, queryGetLinkedAddresses, canonical)
	if err != nil {
		return nil, fmt.Errorf("unable to query linked addresses: %w", err)
	}
	defer closeRows(rows)

	links := make([]models.LinkedAddress, 0)
	for rows.Next() {
		var link models.LinkedAddress
		var chain, createdAt string
		if err := rows.Scan(&link.Id, &link.CanonicalAddress, &chain, &link.LinkedAddress, &createdAt); err != nil {
			return nil, fmt.Errorf("unable to scan linked address row: %w", err)
		}
		link.Chain = models.Chain(chain)
		if link.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating linked address rows: %w", err)
	}
	return links, nil
}
