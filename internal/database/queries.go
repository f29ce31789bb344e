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

const (
	// Linked address queries
	queryInsertLinkedAddress = `
		INSERT INTO linked_addresses (id, canonical_address, chain, linked_address, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryGetLinkedAddresses = `
		SELECT id, canonical_address, chain, linked_address, created_at
		FROM linked_addresses
		WHERE canonical_address = ?
		ORDER BY chain`

	queryFindCanonicalForLinked = `
		SELECT canonical_address
		FROM linked_addresses
		WHERE linked_address = ?`

	queryGetLinkForChain = `
		SELECT linked_address
		FROM linked_addresses
		WHERE canonical_address = ? AND chain = ?`

	queryCountLinksForCanonical = `
		SELECT COUNT(*) FROM linked_addresses WHERE canonical_address = ?`

	// Deposit queries
	queryInsertLendDeposit = `
		INSERT INTO lend_deposits (txn_hash, chain, amount, lender_address, timestamp)
		VALUES (?, ?, ?, ?, ?)`

	queryInsertCollateralDeposit = `
		INSERT INTO collateral_deposits (tx_hash, chain, amount, owner_address, is_locked, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 1, ?, ?)`

	queryGetCollateralDeposit = `
		SELECT tx_hash, chain, amount, owner_address, is_locked, version, created_at, updated_at
		FROM collateral_deposits
		WHERE tx_hash = ?`

	queryGetCollateralLockState = `
		SELECT is_locked FROM collateral_deposits WHERE tx_hash = ?`

	queryLockCollateral = `
		UPDATE collateral_deposits
		SET is_locked = 1, version = version + 1, updated_at = ?
		WHERE tx_hash = ? AND is_locked = 0 AND version = ?`

	queryUnlockCollateral = `
		UPDATE collateral_deposits
		SET is_locked = 0, version = version + 1, updated_at = ?
		WHERE tx_hash = ? AND is_locked = 1`

	queryGetLendAmountsByChain = `
		SELECT amount FROM lend_deposits WHERE chain = ?`

	// Loan queries
	queryInsertLoan = `
		INSERT INTO loans (
			id, borrower_address, collateral_tx_hash, borrow_chain, borrow_amount,
			interest_rate, loan_term_months, interest_amount, total_repayment_amount,
			start_time, due_date, status, version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', 1, ?)`

	loanColumns = `
		id, borrower_address, collateral_tx_hash, borrow_chain, borrow_amount,
		interest_rate, loan_term_months, interest_amount, total_repayment_amount,
		start_time, due_date, status, repayment_tx_hash, repayment_chain, closed_at, version`

	queryGetLoan = `SELECT ` + loanColumns + `
		FROM loans
		WHERE id = ?`

	queryGetActiveLoans = `SELECT ` + loanColumns + `
		FROM loans
		WHERE status = 'active'
		ORDER BY due_date`

	queryGetActiveBorrowAmountsByChain = `
		SELECT borrow_amount FROM loans WHERE status = 'active' AND borrow_chain = ?`

	queryCloseLoan = `
		UPDATE loans
		SET status = ?, repayment_tx_hash = ?, repayment_chain = ?, closed_at = ?, version = version + 1
		WHERE id = ? AND status = 'active' AND version = ?`

	// Ledger event queries
	queryCheckDuplicateEvent = `
		SELECT id FROM ledger_events WHERE tx_hash = ? LIMIT 1`

	queryInsertLedgerEvent = `
		INSERT INTO ledger_events (id, event_type, tx_hash, chain, address, amount, loan_id, collateral_tx_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, event_id, chain, account_type, account_id, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetJournalAccountByChain = `
		SELECT debit_amount, credit_amount
		FROM journal_entries
		WHERE chain = ? AND account_type = ?`

	queryGetAllJournalAccount = `
		SELECT chain, debit_amount, credit_amount
		FROM journal_entries
		WHERE account_type = ?`

	queryGetJournalByChain = `
		SELECT account_type, debit_amount, credit_amount
		FROM journal_entries
		WHERE chain = ?`
)
