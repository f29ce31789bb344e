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

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "lending"

// Metrics owns a private registry so several instances can coexist in tests.
// Every method is safe on a nil receiver.
type Metrics struct {
	registry        *prometheus.Registry
	loans           *prometheus.CounterVec
	deposits        *prometheus.CounterVec
	priceFailures   *prometheus.CounterVec
	poolUtilization *prometheus.GaugeVec
	requests        *prometheus.CounterVec
	durations       *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_events_total",
			Help:      "Loan lifecycle transitions by kind and borrow chain.",
		}, []string{"kind", "chain"}),
		deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "Recorded deposits by kind and chain.",
		}, []string{"kind", "chain"}),
		priceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_fetch_failures_total",
			Help:      "Failed upstream price fetches by source.",
		}, []string{"source"}),
		poolUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_utilization_ratio",
			Help:      "Locked over total liquidity per chain, as last observed.",
		}, []string{"chain"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(m.loans, m.deposits, m.priceFailures, m.poolUtilization, m.requests, m.durations)
	return m
}

func (m *Metrics) LoanCreated(c models.Chain) {
	if m == nil {
		return
	}
	m.loans.WithLabelValues("created", string(c)).Inc()
}

func (m *Metrics) LoanRepaid(c models.Chain) {
	if m == nil {
		return
	}
	m.loans.WithLabelValues("repaid", string(c)).Inc()
}

func (m *Metrics) LoanLiquidated(c models.Chain) {
	if m == nil {
		return
	}
	m.loans.WithLabelValues("liquidated", string(c)).Inc()
}

func (m *Metrics) DepositRecorded(kind string, c models.Chain) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(kind, string(c)).Inc()
}

func (m *Metrics) PriceFetchFailure(source string) {
	if m == nil {
		return
	}
	m.priceFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) PoolUtilization(c models.Chain, rate decimal.Decimal) {
	if m == nil {
		return
	}
	m.poolUtilization.WithLabelValues(string(c)).Set(rate.InexactFloat64())
}

// Handler exposes the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
