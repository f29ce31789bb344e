package database

import (
	"context"
	"errors"
	"testing"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"
)

func TestGetPoolTotals_Empty(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()

	totals, err := s.GetPoolTotals(context.Background())
	if err != nil {
		t.Fatalf("GetPoolTotals failed: %v", err)
	}
	for _, c := range models.SupportedChains {
		p, ok := totals[c]
		if !ok {
			t.Fatalf("Expected entry for %s", c)
		}
		if !p.Total.IsZero() || !p.Locked.IsZero() || !p.Available().IsZero() {
			t.Errorf("Expected zero totals for %s, got %+v", c, p)
		}
	}
}

func TestGetPoolTotals_CountsOnlyActiveLoans(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	seedLendDeposit(t, s, "0xl1", models.ChainETH, "10", "0xa")
	seedLendDeposit(t, s, "0xl2", models.ChainETH, "2.5", "0xb")
	seedLendDeposit(t, s, "nl1", models.ChainNEAR, "1000", "a.near")
	c1 := seedCollateral(t, s, "0xc1", models.ChainETH, "5", "0xb")
	c2 := seedCollateral(t, s, "0xc2", models.ChainETH, "5", "0xb")

	l1, err := s.CreateLoan(ctx, store.CreateLoanParams{Loan: testLoan(t, "0xb", "0xc1", models.ChainETH, "3"), ExpectedCollateralVersion: c1.Version})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}
	if _, err := s.CreateLoan(ctx, store.CreateLoanParams{Loan: testLoan(t, "0xb", "0xc2", models.ChainNEAR, "100"), ExpectedCollateralVersion: c2.Version}); err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}

	totals, err := s.GetPoolTotals(ctx)
	if err != nil {
		t.Fatalf("GetPoolTotals failed: %v", err)
	}
	eth := totals[models.ChainETH]
	if !eth.Total.Equal(mustDecimal(t, "12.5")) || !eth.Locked.Equal(mustDecimal(t, "3")) {
		t.Errorf("Unexpected eth totals %+v", eth)
	}
	if !eth.Available().Equal(mustDecimal(t, "9.5")) {
		t.Errorf("Expected eth available 9.5, got %s", eth.Available())
	}
	near := totals[models.ChainNEAR]
	if !near.Total.Equal(mustDecimal(t, "1000")) || !near.Locked.Equal(mustDecimal(t, "100")) {
		t.Errorf("Unexpected near totals %+v", near)
	}

	if _, err := s.RepayLoan(ctx, store.RepayLoanParams{LoanId: l1.Id, RepaymentTxHash: "0xr", RepaymentChain: models.ChainETH}); err != nil {
		t.Fatalf("RepayLoan failed: %v", err)
	}
	totals, err = s.GetPoolTotals(ctx)
	if err != nil {
		t.Fatalf("GetPoolTotals failed: %v", err)
	}
	if !totals[models.ChainETH].Locked.IsZero() {
		t.Errorf("Expected eth locked 0 after repayment, got %s", totals[models.ChainETH].Locked)
	}
}

func TestCreateLoan_LiquidatedPrincipalDoesNotReturnToPool(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	seedLendDeposit(t, s, "0xl1", models.ChainETH, "1", "0xlender")
	c1 := seedCollateral(t, s, "0xc1", models.ChainNEAR, "5000", "0xb")
	c2 := seedCollateral(t, s, "0xc2", models.ChainNEAR, "5000", "0xb")

	loan, err := s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xc1", models.ChainETH, "1"),
		ExpectedCollateralVersion: c1.Version,
		EnforceLiquidity:          true,
	})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}
	if _, err := s.LiquidateLoan(ctx, store.LiquidateLoanParams{LoanId: loan.Id}); err != nil {
		t.Fatalf("LiquidateLoan failed: %v", err)
	}

	totals, err := s.GetPoolTotals(ctx)
	if err != nil {
		t.Fatalf("GetPoolTotals failed: %v", err)
	}
	eth := totals[models.ChainETH]
	if !eth.Total.IsZero() || !eth.Locked.IsZero() {
		t.Errorf("Expected the seized principal to leave the eth pool, got %+v", eth)
	}
	if !eth.Available().IsZero() {
		t.Errorf("Expected nothing available after liquidation, got %s", eth.Available())
	}

	_, err = s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xc2", models.ChainETH, "1"),
		ExpectedCollateralVersion: c2.Version,
		EnforceLiquidity:          true,
	})
	if !errors.Is(err, store.ErrInsufficientLiquidity) {
		t.Fatalf("Expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestRepayLoan_CrossChainCreditsRepaymentPool(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	seedLendDeposit(t, s, "0xl1", models.ChainETH, "1", "0xlender")
	c1 := seedCollateral(t, s, "0xc1", models.ChainNEAR, "5000", "0xb")
	c2 := seedCollateral(t, s, "0xc2", models.ChainNEAR, "5000", "0xb")

	loan, err := s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xc1", models.ChainETH, "1"),
		ExpectedCollateralVersion: c1.Version,
		EnforceLiquidity:          true,
	})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}

	_, err = s.RepayLoan(ctx, store.RepayLoanParams{
		LoanId: loan.Id, RepaymentTxHash: "repay-near", RepaymentChain: models.ChainNEAR,
	})
	if err == nil {
		t.Fatal("Expected cross-chain repayment without an amount to fail")
	}

	if _, err := s.RepayLoan(ctx, store.RepayLoanParams{
		LoanId: loan.Id, RepaymentTxHash: "repay-near", RepaymentChain: models.ChainNEAR, AmountPaid: mustDecimal(t, "642"),
	}); err != nil {
		t.Fatalf("RepayLoan failed: %v", err)
	}

	totals, err := s.GetPoolTotals(ctx)
	if err != nil {
		t.Fatalf("GetPoolTotals failed: %v", err)
	}
	if !totals[models.ChainETH].Available().IsZero() {
		t.Errorf("Expected eth pool to stay drained, got %s", totals[models.ChainETH].Available())
	}
	if !totals[models.ChainNEAR].Available().Equal(mustDecimal(t, "642")) {
		t.Errorf("Expected near pool to hold the repayment, got %s", totals[models.ChainNEAR].Available())
	}

	for _, c := range models.SupportedChains {
		if _, err := s.ReconcilePool(ctx, c); err != nil {
			t.Errorf("ReconcilePool(%s) failed: %v", c, err)
		}
	}

	_, err = s.CreateLoan(ctx, store.CreateLoanParams{
		Loan:                      testLoan(t, "0xb", "0xc2", models.ChainETH, "0.5"),
		ExpectedCollateralVersion: c2.Version,
		EnforceLiquidity:          true,
	})
	if !errors.Is(err, store.ErrInsufficientLiquidity) {
		t.Fatalf("Expected ErrInsufficientLiquidity, got %v", err)
	}
}
