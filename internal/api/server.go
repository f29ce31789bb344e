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

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crosschain-lending-go/internal/metrics"
	"crosschain-lending-go/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func init() {
	// amounts are JSON numbers in the dashboard contract
	decimal.MarshalJSONWithoutQuotes = true
}

type handler struct {
	svc      *LedgerService
	validate *validator.Validate
}

// NewRouter wires every endpoint of the lending API onto a chi router
func NewRouter(svc *LedgerService, cfg models.ServerConfig, m *metrics.Metrics) http.Handler {
	h := &handler{svc: svc, validate: validator.New()}
	limiter := newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors(cfg.AllowedOrigins))
	r.Use(m.Middleware)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", m.Handler())

	r.Get("/prices", h.prices)
	r.Get("/pool/status", h.poolStatus)
	r.Get("/dashboard/user/{address}", h.dashboard)
	r.Get("/lend/earnings/{address}", h.lendEarnings)
	r.Get("/borrow/user/{address}", h.userLoans)
	r.Get("/collateral/status/{address}", h.collateralStatus)
	r.Get("/user/profile/{address}", h.profile)
	r.Get("/user/history/{address}", h.history)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Post("/lend/deposit", h.lendDeposit)
		r.Post("/collateral/deposit", h.collateralDeposit)
		r.Post("/borrow/request", h.borrow)
		r.Post("/borrow/repay", h.repay)
		r.Post("/user/link", h.linkAddress)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, models.ApiResponse{Success: false, Message: "route not found"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body models.ApiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("Failed to write response", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, models.ApiResponse{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, models.ApiResponse{Success: false, Message: message, Error: http.StatusText(status)})
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return invalidRequest(fmt.Sprintf("malformed request body: %v", err))
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return invalidRequest(fmt.Sprintf("%s failed %q validation", lowerFirst(fe.Field()), fe.Tag()))
		}
		return invalidRequest(err.Error())
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.HealthCheck(r.Context()); err != nil {
		zap.L().Warn("Health check failed", zap.Error(err))
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) prices(w http.ResponseWriter, r *http.Request) {
	data, warning, err := h.svc.GetPrices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, warning)
}

func (h *handler) poolStatus(w http.ResponseWriter, r *http.Request) {
	data, warning, err := h.svc.GetPoolStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, warning)
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	data, warning, err := h.svc.GetDashboard(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, warning)
}

func (h *handler) lendEarnings(w http.ResponseWriter, r *http.Request) {
	data, warning, err := h.svc.GetLendEarnings(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, warning)
}

func (h *handler) userLoans(w http.ResponseWriter, r *http.Request) {
	data, warning, err := h.svc.GetUserLoans(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, warning)
}

func (h *handler) collateralStatus(w http.ResponseWriter, r *http.Request) {
	data, warning, err := h.svc.GetCollateralStatus(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, warning)
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.GetProfile(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, "")
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	data, err := h.svc.GetTransactionHistory(r.Context(), chi.URLParam(r, "address"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, "")
}

func (h *handler) lendDeposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.svc.ProcessLendDeposit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, "lend deposit recorded")
}

func (h *handler) collateralDeposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.svc.ProcessCollateralDeposit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, "collateral deposit recorded")
}

func (h *handler) borrow(w http.ResponseWriter, r *http.Request) {
	var req models.BorrowRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.svc.RequestBorrow(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, "loan created")
}

func (h *handler) repay(w http.ResponseWriter, r *http.Request) {
	var req models.RepayRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.svc.RepayLoan(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, "loan repaid")
}

func (h *handler) linkAddress(w http.ResponseWriter, r *http.Request) {
	var req models.LinkAddressRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.svc.LinkAddress(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data, "address linked")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func cors(allowed []string) func(http.Handler) http.Handler {
	origins := make(map[string]bool, len(allowed))
	wildcard := len(allowed) == 0
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		origins[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && origins[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
