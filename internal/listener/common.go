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
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// poller runs tick once at start and then on every interval until stopped
type poller struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context)

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

func newPoller(name string, interval time.Duration, tick func(ctx context.Context)) *poller {
	return &poller{
		name:     name,
		interval: interval,
		tick:     tick,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (p *poller) start(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("%s: polling interval must be positive, got %s", p.name, p.interval)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("%s: already started", p.name)
	}
	p.started = true

	go p.pollLoop(ctx)

	zap.L().Info("Background job started",
		zap.String("job", p.name),
		zap.Duration("polling_interval", p.interval))
	return nil
}

// stop is safe to call more than once and before start
func (p *poller) stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopChan)
	p.mu.Unlock()

	<-p.doneChan
	zap.L().Info("Background job stopped", zap.String("job", p.name))
}

func (p *poller) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
