package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"
)

func TestCreateLoan_LocksCollateral(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	seedLendDeposit(t, s, "0xl1", models.ChainETH, "10", "0xlender")
	c := seedCollateral(t, s, "0xabc", models.ChainETH, "2", "0xborrower")

	loan, err := s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xBorrower", "0xABC", models.ChainETH, "0.5"),
		ExpectedCollateralVersion: c.Version,
		EnforceLiquidity:          true,
	})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}
	if loan.Status != models.LoanStatusActive {
		t.Errorf("Expected active loan, got %s", loan.Status)
	}

	got, err := s.GetCollateralDeposit(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetCollateralDeposit failed: %v", err)
	}
	if !got.IsLocked || got.Version != 2 {
		t.Errorf("Expected locked collateral at version 2, got locked=%v version=%d", got.IsLocked, got.Version)
	}

	stored, err := s.GetLoan(ctx, loan.Id)
	if err != nil {
		t.Fatalf("GetLoan failed: %v", err)
	}
	if !stored.TotalRepaymentAmount.Equal(loan.BorrowAmount.Add(loan.InterestAmount)) {
		t.Errorf("Stored total %s does not match principal plus interest", stored.TotalRepaymentAmount)
	}
	if !stored.DueDate.Equal(testNow.AddDate(0, 12, 0)) {
		t.Errorf("Unexpected due date %v", stored.DueDate)
	}
	if stored.BorrowerAddress != "0xborrower" || stored.CollateralTxHash != "0xabc" {
		t.Errorf("Expected normalized identifiers, got %s / %s", stored.BorrowerAddress, stored.CollateralTxHash)
	}
}

func TestCreateLoan_SecondBorrowConflicts(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	c := seedCollateral(t, s, "0xabc", models.ChainETH, "2", "0xb")

	if _, err := s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xabc", models.ChainETH, "0.1"),
		ExpectedCollateralVersion: c.Version,
	}); err != nil {
		t.Fatalf("First CreateLoan failed: %v", err)
	}

	_, err := s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xabc", models.ChainETH, "0.1"),
		ExpectedCollateralVersion: c.Version,
	})
	if !errors.Is(err, store.ErrCollateralLocked) {
		t.Errorf("Expected ErrCollateralLocked, got %v", err)
	}
}

func TestCreateLoan_StaleVersion(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()

	seedCollateral(t, s, "0xabc", models.ChainETH, "2", "0xb")

	_, err := s.CreateLoan(context.Background(), store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xabc", models.ChainETH, "0.1"),
		ExpectedCollateralVersion: 7,
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification, got %v", err)
	}
}

func TestCreateLoan_MissingCollateral(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()

	_, err := s.CreateLoan(context.Background(), store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xnothing", models.ChainETH, "0.1"),
		ExpectedCollateralVersion: 1,
	})
	if !errors.Is(err, store.ErrCollateralNotFound) {
		t.Errorf("Expected ErrCollateralNotFound, got %v", err)
	}
}

func TestCreateLoan_InsufficientLiquidityRollsBackLock(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	seedLendDeposit(t, s, "0xl1", models.ChainNEAR, "100", "lender.near")
	c := seedCollateral(t, s, "0xabc", models.ChainETH, "2", "0xb")

	_, err := s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xabc", models.ChainNEAR, "100.01"),
		ExpectedCollateralVersion: c.Version,
		EnforceLiquidity:          true,
	})
	if !errors.Is(err, store.ErrInsufficientLiquidity) {
		t.Fatalf("Expected ErrInsufficientLiquidity, got %v", err)
	}

	got, err := s.GetCollateralDeposit(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetCollateralDeposit failed: %v", err)
	}
	if got.IsLocked || got.Version != 1 {
		t.Errorf("Expected lock to roll back, got locked=%v version=%d", got.IsLocked, got.Version)
	}

	active, err := s.GetActiveLoans(ctx)
	if err != nil {
		t.Fatalf("GetActiveLoans failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no loans after rollback, got %d", len(active))
	}
}

func TestCreateLoan_ConcurrentExactlyOneWins(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	c := seedCollateral(t, s, "0xabc", models.ChainETH, "2", "0xb")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	params := make([]store.CreateLoanParams, attempts)
	for i := range params {
		params[i] = store.CreateLoanParams{
			Loan:                      testLoan(t, "0xb", "0xabc", models.ChainETH, "0.1"),
			ExpectedCollateralVersion: c.Version,
		}
	}
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateLoan(ctx, params[i])
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, store.ErrCollateralLocked), errors.Is(err, store.ErrConcurrentModification):
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("Expected exactly one successful loan, got %d", successes)
	}

	active, err := s.GetActiveLoans(ctx)
	if err != nil {
		t.Fatalf("GetActiveLoans failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("Expected 1 active loan, got %d", len(active))
	}
}

func TestRepayLoan_ExactlyOnce(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	c := seedCollateral(t, s, "0xabc", models.ChainETH, "2", "0xb")
	loan, err := s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xabc", models.ChainETH, "0.1"),
		ExpectedCollateralVersion: c.Version,
	})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}

	repaid, err := s.RepayLoan(ctx, store.RepayLoanParams{
		LoanId:          loan.Id,
		RepaymentTxHash: "0xREPAY1",
		RepaymentChain:  models.ChainETH,
	})
	if err != nil {
		t.Fatalf("RepayLoan failed: %v", err)
	}
	if repaid.Status != models.LoanStatusRepaid || repaid.RepaymentTxHash != "0xrepay1" {
		t.Errorf("Unexpected repaid loan %+v", repaid)
	}

	collateral, err := s.GetCollateralDeposit(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetCollateralDeposit failed: %v", err)
	}
	if collateral.IsLocked || collateral.Version != 3 {
		t.Errorf("Expected unlocked collateral at version 3, got locked=%v version=%d", collateral.IsLocked, collateral.Version)
	}

	_, err = s.RepayLoan(ctx, store.RepayLoanParams{
		LoanId: loan.Id, RepaymentTxHash: "0xrepay2", RepaymentChain: models.ChainETH,
	})
	if !errors.Is(err, store.ErrLoanNotActive) {
		t.Errorf("Expected ErrLoanNotActive on second repay, got %v", err)
	}

	_, err = s.RepayLoan(ctx, store.RepayLoanParams{
		LoanId: loan.Id, RepaymentTxHash: "0xrepay1", RepaymentChain: models.ChainETH,
	})
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction on replayed hash, got %v", err)
	}

	after, err := s.GetCollateralDeposit(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetCollateralDeposit failed: %v", err)
	}
	if after.Version != collateral.Version {
		t.Errorf("Collateral changed after rejected repay: version %d -> %d", collateral.Version, after.Version)
	}

	// collateral is reusable after repayment
	if _, err := s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xabc", models.ChainETH, "0.1"),
		ExpectedCollateralVersion: after.Version,
	}); err != nil {
		t.Errorf("Expected collateral to back a new loan, got %v", err)
	}
}

func TestRepayLoan_NotFound(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()

	_, err := s.RepayLoan(context.Background(), store.RepayLoanParams{
		LoanId: "missing", RepaymentTxHash: "0xr", RepaymentChain: models.ChainETH,
	})
	if !errors.Is(err, store.ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound, got %v", err)
	}
}

func TestLiquidateLoan_KeepsCollateralLocked(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	c := seedCollateral(t, s, "0xabc", models.ChainETH, "2", "0xb")
	loan, err := s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xabc", models.ChainETH, "0.1"),
		ExpectedCollateralVersion: c.Version,
	})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}

	liquidated, err := s.LiquidateLoan(ctx, store.LiquidateLoanParams{LoanId: loan.Id})
	if err != nil {
		t.Fatalf("LiquidateLoan failed: %v", err)
	}
	if liquidated.Status != models.LoanStatusLiquidated || liquidated.ClosedAt.IsZero() {
		t.Errorf("Unexpected liquidated loan %+v", liquidated)
	}

	collateral, err := s.GetCollateralDeposit(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetCollateralDeposit failed: %v", err)
	}
	if !collateral.IsLocked {
		t.Error("Expected seized collateral to stay locked")
	}

	_, err = s.RepayLoan(ctx, store.RepayLoanParams{
		LoanId: loan.Id, RepaymentTxHash: "0xlate", RepaymentChain: models.ChainETH,
	})
	if !errors.Is(err, store.ErrLoanNotActive) {
		t.Errorf("Expected ErrLoanNotActive repaying a liquidated loan, got %v", err)
	}

	if _, err := s.LiquidateLoan(ctx, store.LiquidateLoanParams{LoanId: loan.Id}); !errors.Is(err, store.ErrLoanNotActive) {
		t.Errorf("Expected ErrLoanNotActive on second liquidation, got %v", err)
	}
}

func TestGetLoansByBorrowers(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	c1 := seedCollateral(t, s, "0xc1", models.ChainETH, "2", "0xaaa")
	c2 := seedCollateral(t, s, "nearc", models.ChainNEAR, "500", "alice.near")
	for _, p := range []store.CreateLoanParams{
		{Loan: testLoan(t, "0xaaa", "0xc1", models.ChainNEAR, "10"), ExpectedCollateralVersion: c1.Version},
		{Loan: testLoan(t, "alice.near", "nearc", models.ChainETH, "0.5"), ExpectedCollateralVersion: c2.Version},
	} {
		if _, err := s.CreateLoan(ctx, p); err != nil {
			t.Fatalf("CreateLoan failed: %v", err)
		}
	}

	loans, err := s.GetLoansByBorrowers(ctx, []string{"0xaaa", "alice.near"})
	if err != nil {
		t.Fatalf("GetLoansByBorrowers failed: %v", err)
	}
	if len(loans) != 2 {
		t.Errorf("Expected 2 loans, got %d", len(loans))
	}

	none, err := s.GetLoansByBorrowers(ctx, []string{"0xnobody"})
	if err != nil {
		t.Fatalf("GetLoansByBorrowers failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", none)
	}
}

func TestReconcilePool_BalancedAcrossLifecycle(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	seedLendDeposit(t, s, "0xl1", models.ChainETH, "10", "0xlender")
	c1 := seedCollateral(t, s, "0xc1", models.ChainETH, "2", "0xb")
	c2 := seedCollateral(t, s, "0xc2", models.ChainETH, "2", "0xb")

	l1, err := s.CreateLoan(ctx, store.CreateLoanParams{Loan: testLoan(t, "0xb", "0xc1", models.ChainETH, "1"), ExpectedCollateralVersion: c1.Version, EnforceLiquidity: true})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}
	l2, err := s.CreateLoan(ctx, store.CreateLoanParams{Loan: testLoan(t, "0xb", "0xc2", models.ChainETH, "2"), ExpectedCollateralVersion: c2.Version, EnforceLiquidity: true})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}
	if _, err := s.RepayLoan(ctx, store.RepayLoanParams{LoanId: l1.Id, RepaymentTxHash: "0xr1", RepaymentChain: models.ChainETH}); err != nil {
		t.Fatalf("RepayLoan failed: %v", err)
	}
	if _, err := s.LiquidateLoan(ctx, store.LiquidateLoanParams{LoanId: l2.Id}); err != nil {
		t.Fatalf("LiquidateLoan failed: %v", err)
	}

	report, err := s.ReconcilePool(ctx, models.ChainETH)
	if err != nil {
		t.Fatalf("ReconcilePool failed: %v", err)
	}
	if !report.ActiveLocked.IsZero() || !report.JournalLocked.IsZero() {
		t.Errorf("Expected nothing locked, got active=%s journal=%s", report.ActiveLocked, report.JournalLocked)
	}
	// 10 lent - 1 - 2 borrowed + 1.07 repaid
	if !report.JournalLiquid.Equal(mustDecimal(t, "8.07")) {
		t.Errorf("Expected liquidity 8.07, got %s", report.JournalLiquid)
	}
	if !report.LendTotal.Equal(mustDecimal(t, "10")) {
		t.Errorf("Expected lend total 10, got %s", report.LendTotal)
	}
}

func TestReconcilePool_DetectsTampering(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	c := seedCollateral(t, s, "0xc1", models.ChainETH, "2", "0xb")
	loan, err := s.CreateLoan(ctx, store.CreateLoanParams{Loan: testLoan(t, "0xb", "0xc1", models.ChainETH, "1"), ExpectedCollateralVersion: c.Version})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}

	if _, err := s.db.Exec("UPDATE loans SET status = 'repaid' WHERE id = ?", loan.Id); err != nil {
		t.Fatalf("Failed to tamper with loan: %v", err)
	}

	_, err = s.ReconcilePool(ctx, models.ChainETH)
	if !errors.Is(err, store.ErrLedgerImbalance) {
		t.Errorf("Expected ErrLedgerImbalance, got %v", err)
	}
}
