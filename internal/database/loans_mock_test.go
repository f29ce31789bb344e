package database

import (
	"context"
	"errors"
	"testing"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func loanRow(mock sqlmock.Sqlmock, status string) *sqlmock.Rows {
	return mock.NewRows([]string{
		"id", "borrower_address", "collateral_tx_hash", "borrow_chain", "borrow_amount",
		"interest_rate", "loan_term_months", "interest_amount", "total_repayment_amount",
		"start_time", "due_date", "status", "repayment_tx_hash", "repayment_chain", "closed_at", "version",
	}).AddRow(
		"loan-1", "0xb", "0xabc", "eth", "1",
		"0.07", int64(12), "0.07", "1.07",
		formatTime(testNow), formatTime(testNow.AddDate(0, 12, 0)), status, nil, nil, nil, int64(1),
	)
}

func TestRepayLoan_RollsBackWhenUnlockMisses(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()
	s := newService(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM ledger_events WHERE tx_hash = \\?").
		WithArgs("0xrepay").
		WillReturnRows(mock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT (.+) FROM loans WHERE id = \\?").
		WithArgs("loan-1").
		WillReturnRows(loanRow(mock, "active"))
	mock.ExpectExec("UPDATE loans SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE collateral_deposits SET is_locked = 0").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = s.RepayLoan(context.Background(), store.RepayLoanParams{
		LoanId:          "loan-1",
		RepaymentTxHash: "0xREPAY",
		RepaymentChain:  models.ChainETH,
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestCreateLoan_ReportsLockedWithoutWriting(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()
	s := newService(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE collateral_deposits SET is_locked = 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT is_locked FROM collateral_deposits").
		WithArgs("0xabc").
		WillReturnRows(mock.NewRows([]string{"is_locked"}).AddRow(true))
	mock.ExpectRollback()

	_, err = s.CreateLoan(context.Background(), store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xabc", models.ChainETH, "1"),
		ExpectedCollateralVersion: 1,
	})
	if !errors.Is(err, store.ErrCollateralLocked) {
		t.Errorf("Expected ErrCollateralLocked, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
