package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"aaveCustody/internal/model"
)

// Custody is the read side of the custody module.
type Custody interface {
	Owner() common.Address
	Address() common.Address
	Registry() common.Address
	PoolAddress() common.Address
	LinkToken() common.Address
	GetBalance(ctx context.Context, token common.Address) (*big.Int, error)
	GetUserAccountData(ctx context.Context, user common.Address) (model.AccountData, error)
	AllowanceLink(ctx context.Context, spender common.Address) (*big.Int, error)
}

// RequestCounter counts served requests.
type RequestCounter interface {
	ObserveRequest(route string, status int)
}

// Config wires the router.
type Config struct {
	Custody        Custody
	MetricsHandler http.Handler
	Requests       RequestCounter
	Logger         *zap.Logger
}

type handler struct {
	custody Custody
	logger  *zap.Logger
}

// New builds the read-only HTTP API.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{custody: cfg.Custody, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.Requests != nil {
		r.Use(countRequests(cfg.Requests))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(sr chi.Router) {
		sr.Get("/info", h.info)
		sr.Get("/balances/{token}", h.balance)
		sr.Get("/accounts/{user}", h.account)
		sr.Get("/link/allowance/{spender}", h.allowance)
	})

	return r
}

type infoResponse struct {
	Owner    string `json:"owner"`
	Address  string `json:"address"`
	Registry string `json:"registry"`
	Pool     string `json:"pool"`
	Link     string `json:"link_token"`
}

type amountResponse struct {
	Token   string `json:"token,omitempty"`
	Spender string `json:"spender,omitempty"`
	Holder  string `json:"holder"`
	Amount  string `json:"amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Owner:    h.custody.Owner().Hex(),
		Address:  h.custody.Address().Hex(),
		Registry: h.custody.Registry().Hex(),
		Pool:     h.custody.PoolAddress().Hex(),
		Link:     h.custody.LinkToken().Hex(),
	})
}

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	token, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	balance, err := h.custody.GetBalance(r.Context(), token)
	if err != nil {
		h.upstreamError(w, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{
		Token:  token.Hex(),
		Holder: h.custody.Address().Hex(),
		Amount: balance.String(),
	})
}

func (h *handler) account(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(w, r, "user")
	if !ok {
		return
	}
	data, err := h.custody.GetUserAccountData(r.Context(), user)
	if err != nil {
		h.upstreamError(w, "account data", err)
		return
	}
	writeJSON(w, http.StatusOK, data.View(user.Hex()))
}

func (h *handler) allowance(w http.ResponseWriter, r *http.Request) {
	spender, ok := addressParam(w, r, "spender")
	if !ok {
		return
	}
	allowance, err := h.custody.AllowanceLink(r.Context(), spender)
	if err != nil {
		h.upstreamError(w, "link allowance", err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{
		Token:   h.custody.LinkToken().Hex(),
		Spender: spender.Hex(),
		Holder:  h.custody.Address().Hex(),
		Amount:  allowance.String(),
	})
}

func (h *handler) upstreamError(w http.ResponseWriter, what string, err error) {
	h.logger.Warn("read failed", zap.String("what", what), zap.Error(err))
	writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
}

func addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := chi.URLParam(r, name)
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name + " address"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func countRequests(counter RequestCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			counter.ObserveRequest(route, status)
		})
	}
}
