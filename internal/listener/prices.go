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

type Refresher interface {
	Refresh(ctx context.Context) (models.PriceSnapshot, error)
}

// PriceRefresher keeps the oracle cache warm so requests rarely wait on the upstream feed
type PriceRefresher struct {
	refresher Refresher
	timeout   time.Duration
	poller    *poller
}

func NewPriceRefresher(refresher Refresher, interval, timeout time.Duration) *PriceRefresher {
	r := &PriceRefresher{refresher: refresher, timeout: timeout}
	r.poller = newPoller("price_refresher", interval, func(ctx context.Context) {
		r.refresh(ctx)
	})
	return r
}

func (r *PriceRefresher) Start(ctx context.Context) error {
	return r.poller.start(ctx)
}

func (r *PriceRefresher) Stop() {
	r.poller.stop()
}

func (r *PriceRefresher) refresh(ctx context.Context) bool {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	snapshot, err := r.refresher.Refresh(ctx)
	if err != nil {
		// the oracle already logs and counts the failure
		return false
	}
	zap.L().Debug("Price cache warmed",
		zap.String("source", snapshot.Source),
		zap.Time("last_updated", snapshot.LastUpdated))
	return true
}
