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

package listener

import (
	"context"
	"time"

	"crosschain-lending-go/internal/models"

	"go.uber.org/zap"
)

// Liquidator closes every active loan past its due date plus grace period
type Liquidator interface {
	LiquidateOverdue(ctx context.Context, now time.Time) ([]models.Loan, error)
}

type LiquidationWatcherConfig struct {
	Liquidator      Liquidator
	PollingInterval time.Duration
}

// LiquidationWatcher periodically sweeps overdue loans
type LiquidationWatcher struct {
	liquidator Liquidator
	now        func() time.Time
	poller     *poller
}

func NewLiquidationWatcher(cfg LiquidationWatcherConfig) *LiquidationWatcher {
	w := &LiquidationWatcher{
		liquidator: cfg.Liquidator,
		now:        time.Now,
	}
	w.poller = newPoller("liquidation_watcher", cfg.PollingInterval, func(ctx context.Context) {
		w.sweep(ctx)
	})
	return w
}

func (w *LiquidationWatcher) Start(ctx context.Context) error {
	return w.poller.start(ctx)
}

func (w *LiquidationWatcher) Stop() {
	w.poller.stop()
}

// sweep returns the loans it liquidated; failures on single loans are logged and skipped
func (w *LiquidationWatcher) sweep(ctx context.Context) []models.Loan {
	now := w.now().UTC()
	liquidated, err := w.liquidator.LiquidateOverdue(ctx, now)
	if err != nil {
		zap.L().Error("Liquidation sweep finished with errors", zap.Error(err))
	}

	for _, l := range liquidated {
		zap.L().Warn("Loan liquidated",
			zap.String("loan_id", l.Id),
			zap.String("borrower", l.BorrowerAddress),
			zap.String("collateral_tx_hash", l.CollateralTxHash),
			zap.Time("due_date", l.DueDate))
	}
	if len(liquidated) > 0 {
		zap.L().Info("Liquidation sweep complete", zap.Int("liquidated", len(liquidated)))
	}
	return liquidated
}
