package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLiquidator struct {
	mu     sync.Mutex
	calls  []time.Time
	loans  []models.Loan
	err    error
	called chan struct{}
}

func (f *fakeLiquidator) LiquidateOverdue(_ context.Context, now time.Time) ([]models.Loan, error) {
	f.mu.Lock()
	f.calls = append(f.calls, now)
	f.mu.Unlock()
	if f.called != nil {
		select {
		case f.called <- struct{}{}:
		default:
		}
	}
	return f.loans, f.err
}

func TestLiquidationWatcher_SweepPassesCurrentTime(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	liquidator := &fakeLiquidator{loans: []models.Loan{{Id: "loan-1", BorrowerAddress: "0xalice"}}}
	w := NewLiquidationWatcher(LiquidationWatcherConfig{Liquidator: liquidator, PollingInterval: time.Minute})
	w.now = func() time.Time { return fixed }

	liquidated := w.sweep(context.Background())

	require.Len(t, liquidated, 1)
	assert.Equal(t, "loan-1", liquidated[0].Id)
	require.Len(t, liquidator.calls, 1)
	assert.True(t, liquidator.calls[0].Equal(fixed))
}

func TestLiquidationWatcher_SweepKeepsPartialResults(t *testing.T) {
	liquidator := &fakeLiquidator{
		loans: []models.Loan{{Id: "loan-1"}},
		err:   errors.New("loan-2: database is locked"),
	}
	w := NewLiquidationWatcher(LiquidationWatcherConfig{Liquidator: liquidator, PollingInterval: time.Minute})

	liquidated := w.sweep(context.Background())
	assert.Len(t, liquidated, 1)
}

func TestLiquidationWatcher_StartRunsImmediately(t *testing.T) {
	liquidator := &fakeLiquidator{called: make(chan struct{}, 1)}
	w := NewLiquidationWatcher(LiquidationWatcherConfig{Liquidator: liquidator, PollingInterval: time.Hour})

	require.NoError(t, w.Start(context.Background()))
	select {
	case <-liquidator.called:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not sweep on start")
	}
	w.Stop()
	w.Stop()
}

func TestLiquidationWatcher_RejectsBadInterval(t *testing.T) {
	w := NewLiquidationWatcher(LiquidationWatcherConfig{Liquidator: &fakeLiquidator{}})
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
}

func TestPoller_StartTwice(t *testing.T) {
	p := newPoller("test", time.Hour, func(context.Context) {})
	require.NoError(t, p.start(context.Background()))
	assert.Error(t, p.start(context.Background()))
	p.stop()
}

func TestPoller_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newPoller("test", time.Hour, func(context.Context) {})
	require.NoError(t, p.start(ctx))

	cancel()
	select {
	case <-p.doneChan:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not exit after cancel")
	}
}

type fakeRefresher struct {
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context) (models.PriceSnapshot, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return models.PriceSnapshot{}, errors.New("expected a deadline")
	}
	if f.err != nil {
		return models.PriceSnapshot{}, f.err
	}
	return models.PriceSnapshot{ETH: decimal.NewFromInt(3000), NEAR: decimal.NewFromInt(5), Source: "fake"}, nil
}

func TestPriceRefresher_Refresh(t *testing.T) {
	ok := &fakeRefresher{}
	assert.True(t, NewPriceRefresher(ok, time.Minute, time.Second).refresh(context.Background()))

	failing := &fakeRefresher{err: errors.New("rate limited")}
	assert.False(t, NewPriceRefresher(failing, time.Minute, time.Second).refresh(context.Background()))
	assert.Equal(t, 1, failing.calls)
}

type fakeReconciler struct {
	reports map[models.Chain]*store.ReconcileReport
	errs    map[models.Chain]error
}

func (f *fakeReconciler) ReconcilePool(_ context.Context, c models.Chain) (*store.ReconcileReport, error) {
	if err := f.errs[c]; err != nil {
		return nil, err
	}
	return f.reports[c], nil
}

func TestReconcileAuditor_FlagsImbalancedChains(t *testing.T) {
	ten := decimal.NewFromInt(10)
	reconciler := &fakeReconciler{
		reports: map[models.Chain]*store.ReconcileReport{
			models.ChainETH: {Chain: models.ChainETH, ActiveLocked: ten, JournalLocked: ten, TotalDebits: ten, TotalCredits: ten},
			models.ChainNEAR: {Chain: models.ChainNEAR, ActiveLocked: ten, JournalLocked: decimal.Zero,
				TotalDebits: ten, TotalCredits: ten},
		},
	}

	imbalanced := NewReconcileAuditor(reconciler, time.Minute).audit(context.Background())
	assert.Equal(t, []models.Chain{models.ChainNEAR}, imbalanced)
}

func TestReconcileAuditor_SkipsFailedChains(t *testing.T) {
	ten := decimal.NewFromInt(10)
	reconciler := &fakeReconciler{
		reports: map[models.Chain]*store.ReconcileReport{
			models.ChainNEAR: {Chain: models.ChainNEAR, ActiveLocked: ten, JournalLocked: ten, TotalDebits: ten, TotalCredits: ten},
		},
		errs: map[models.Chain]error{models.ChainETH: errors.New("disk I/O error")},
	}

	assert.Empty(t, NewReconcileAuditor(reconciler, time.Minute).audit(context.Background()))
}
