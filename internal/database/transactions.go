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

	"go.uber.org/zap"
)

func validateDeposit(params store.RecordDepositParams) error {
	if params.TxHash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}
	if !params.Chain.Valid() {
		return fmt.Errorf("unsupported chain: %q", params.Chain)
	}
	if !params.Amount.IsPositive() {
		return fmt.Errorf("deposit amount must be positive, got %s", params.Amount)
	}
	if models.NormalizeAddress(params.Address) == "" {
		return fmt.Errorf("depositor address cannot be empty")
	}
	return nil
}

// RecordLendDeposit adds pool liquidity and its ledger event atomically
func (s *Service) RecordLendDeposit(ctx context.Context, params store.RecordDepositParams) (*models.LendDeposit, error) {
	if err := validateDeposit(params); err != nil {
		return nil, err
	}

	deposit := &models.LendDeposit{
		TxnHash:       models.NormalizeTxHash(params.TxHash),
		Chain:         params.Chain,
		Amount:        params.Amount,
		LenderAddress: models.NormalizeAddress(params.Address),
		Timestamp:     params.Timestamp.UTC(),
	}
	if deposit.Timestamp.IsZero() {
		deposit.Timestamp = s.now()
	}

	zap.L().Info("Recording lend deposit",
		zap.String("tx_hash", deposit.TxnHash),
		zap.String("chain", string(deposit.Chain)),
		zap.String("amount", deposit.Amount.String()),
		zap.String("lender", deposit.LenderAddress))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	event := &models.LedgerEvent{
		EventType: models.EventLendDeposit,
		TxHash:    deposit.TxnHash,
		Chain:     deposit.Chain,
		Address:   deposit.LenderAddress,
		Amount:    deposit.Amount,
		CreatedAt: s.now(),
	}
	if err := s.journal.Record(ctx, tx, event, lendDepositEntries(deposit)); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, queryInsertLendDeposit,
		deposit.TxnHash, string(deposit.Chain), deposit.Amount.String(), deposit.LenderAddress, formatTime(deposit.Timestamp))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: lend deposit %s", store.ErrDuplicateTransaction, deposit.TxnHash)
		}
		return nil, fmt.Errorf("failed to insert lend deposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Lend deposit recorded successfully", zap.String("tx_hash", deposit.TxnHash))
	return deposit, nil
}

// RecordCollateralDeposit creates an unlocked collateral record at version 1
func (s *Service) RecordCollateralDeposit(ctx context.Context, params store.RecordDepositParams) (*models.CollateralDeposit, error) {
	if err := validateDeposit(params); err != nil {
		return nil, err
	}

	now := s.now()
	createdAt := params.Timestamp.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	deposit := &models.CollateralDeposit{
		TxHash:       models.NormalizeTxHash(params.TxHash),
		Chain:        params.Chain,
		Amount:       params.Amount,
		OwnerAddress: models.NormalizeAddress(params.Address),
		IsLocked:     false,
		Version:      1,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}

	zap.L().Info("Recording collateral deposit",
		zap.String("tx_hash", deposit.TxHash),
		zap.String("chain", string(deposit.Chain)),
		zap.String("amount", deposit.Amount.String()),
		zap.String("owner", deposit.OwnerAddress))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	event := &models.LedgerEvent{
		EventType:        models.EventCollateralDeposit,
		TxHash:           deposit.TxHash,
		Chain:            deposit.Chain,
		Address:          deposit.OwnerAddress,
		Amount:           deposit.Amount,
		CollateralTxHash: deposit.TxHash,
		CreatedAt:        now,
	}
	if err := s.journal.Record(ctx, tx, event, collateralDepositEntries(deposit)); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, queryInsertCollateralDeposit,
		deposit.TxHash, string(deposit.Chain), deposit.Amount.String(), deposit.OwnerAddress,
		formatTime(deposit.CreatedAt), formatTime(deposit.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: collateral deposit %s", store.ErrDuplicateTransaction, deposit.TxHash)
		}
		return nil, fmt.Errorf("failed to insert collateral deposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Collateral deposit recorded successfully", zap.String("tx_hash", deposit.TxHash))
	return deposit, nil
}

func (s *Service) GetLendDeposits(ctx context.Context, lenders []string) ([]models.LendDeposit, error) {
	deposits := make([]models.LendDeposit, 0)
	lenders = normalizeAll(lenders)
	if len(lenders) == 0 {
		return deposits, nil
	}

	in, args := inClause(lenders)
	query := `SELECT txn_hash, chain, amount, lender_address, timestamp
		FROM lend_deposits
		WHERE lender_address IN ` + in + `
		ORDER BY timestamp DESC, txn_hash`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query lend deposits: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var d models.LendDeposit
		var chain, amount, timestamp string
		if err := rows.Scan(&d.TxnHash, &chain, &amount, &d.LenderAddress, &timestamp); err != nil {
			return nil, fmt.Errorf("unable to scan lend deposit row: %w", err)
		}
		d.Chain = models.Chain(chain)
		if d.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		if d.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lend deposit rows: %w", err)
	}
	return deposits, nil
}

func (s *Service) GetCollateralDeposit(ctx context.Context, txHash string) (*models.CollateralDeposit, error) {
	return s.getCollateralDeposit(ctx, s.db, models.NormalizeTxHash(txHash))
}

func (s *Service) getCollateralDeposit(ctx context.Context, q queryer, txHash string) (*models.CollateralDeposit, error) {
	row := q.QueryRowContext(ctx, queryGetCollateralDeposit, txHash)
	d, err := scanCollateral(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", store.ErrCollateralNotFound, txHash)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load collateral deposit: %w", err)
	}
	return d, nil
}

func (s *Service) GetCollateralDeposits(ctx context.Context, owners []string) ([]models.CollateralDeposit, error) {
	deposits := make([]models.CollateralDeposit, 0)
	owners = normalizeAll(owners)
	if len(owners) == 0 {
		return deposits, nil
	}

	in, args := inClause(owners)
	query := `SELECT tx_hash, chain, amount, owner_address, is_locked, version, created_at, updated_at
		FROM collateral_deposits
		WHERE owner_address IN ` + in + `
		ORDER BY created_at DESC, tx_hash`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query collateral deposits: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		d, err := scanCollateral(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan collateral row: %w", err)
		}
		deposits = append(deposits, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collateral rows: %w", err)
	}
	return deposits, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCollateral(row rowScanner) (*models.CollateralDeposit, error) {
	var d models.CollateralDeposit
	var chain, amount, createdAt, updatedAt string
	if err := row.Scan(&d.TxHash, &chain, &amount, &d.OwnerAddress, &d.IsLocked, &d.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	d.Chain = models.Chain(chain)
	if d.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetLedgerHistory returns the audit events touching any of the addresses, newest first
func (s *Service) GetLedgerHistory(ctx context.Context, addresses []string, limit, offset int) ([]models.LedgerEvent, error) {
	events := make([]models.LedgerEvent, 0)
	addresses = normalizeAll(addresses)
	if len(addresses) == 0 {
		return events, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	in, args := inClause(addresses)
	args = append(args, limit, offset)
	query := `SELECT id, event_type, tx_hash, chain, address, amount, loan_id, collateral_tx_hash, created_at
		FROM ledger_events
		WHERE address IN ` + in + `
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger history: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var e models.LedgerEvent
		var chain, amount, createdAt string
		var txHash, loanId, collateralTxHash sql.NullString
		if err := rows.Scan(&e.Id, &e.EventType, &txHash, &chain, &e.Address, &amount, &loanId, &collateralTxHash, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger event: %w", err)
		}
		e.TxHash = txHash.String
		e.LoanId = loanId.String
		e.CollateralTxHash = collateralTxHash.String
		e.Chain = models.Chain(chain)
		if e.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return events, nil
}
