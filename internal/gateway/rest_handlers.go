package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/advisor-trader/internal/advisor"
	"github.com/yourorg/advisor-trader/internal/auth"
	"github.com/yourorg/advisor-trader/internal/domain"
	"github.com/yourorg/advisor-trader/internal/execution"
	"github.com/yourorg/advisor-trader/internal/normalize"
	pgRepo "github.com/yourorg/advisor-trader/internal/repository/postgres"
)

type Handlers struct {
	userRepo   *pgRepo.UserRepo
	trades     *execution.TradeService
	advisor    *advisor.Client
	oracle     domain.PriceOracle
	jwtSvc     *auth.JWTService
	universe   []string
	maxRetries int
	logger     *slog.Logger
}

func NewHandlers(
	userRepo *pgRepo.UserRepo,
	trades *execution.TradeService,
	advisorClient *advisor.Client,
	oracle domain.PriceOracle,
	jwtSvc *auth.JWTService,
	universe []string,
	maxRetries int,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		userRepo:   userRepo,
		trades:     trades,
		advisor:    advisorClient,
		oracle:     oracle,
		jwtSvc:     jwtSvc,
		universe:   universe,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user := &domain.User{
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if err := h.userRepo.Create(r.Context(), user); err != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	token, err := h.jwtSvc.Sign(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.userRepo.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.jwtSvc.Sign(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

type createPortfolioRequest struct {
	Name        string  `json:"name"`
	InitialCash float64 `json:"initial_cash"`
}

func (h *Handlers) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.trades.CreatePortfolio(r.Context(), auth.UserIDFromCtx(r.Context()), req.Name, req.InitialCash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.trades.ListPortfolios(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list portfolios")
		return
	}
	writeJSON(w, http.StatusOK, portfolios)
}

func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}
	snap, err := h.trades.GetSnapshot(r.Context(), p.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type executeTradeRequest struct {
	Ticker    string             `json:"ticker"`
	Action    domain.TradeAction `json:"action"`
	Quantity  float64            `json:"quantity"`
	Rationale string             `json:"rationale"`
}

func (h *Handlers) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}
	var req executeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := h.trades.ExecuteTrade(r.Context(), p.ID, req.Ticker, req.Action, req.Quantity, req.Rationale)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	txs, err := h.trades.ListTransactions(r.Context(), p.ID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type adviceResponse struct {
	Order       domain.Order           `json:"order"`
	Corrections []normalize.Correction `json:"corrections"`
	Attempts    int                    `json:"attempts"`
	Fallback    bool                   `json:"fallback"`
	Transaction *domain.Transaction    `json:"transaction,omitempty"`
}

// Advise runs one decision cycle: ask the advisor for a proposal,
// normalize it against the live snapshot, and execute the resulting
// order unless it is a HOLD. Corrections ride along in the response so
// a clamped trade is visibly labeled as corrected.
func (h *Handlers) Advise(w http.ResponseWriter, r *http.Request) {
	if h.advisor == nil {
		writeError(w, http.StatusServiceUnavailable, "advisor is not configured")
		return
	}
	p, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	snap, err := h.trades.GetSnapshot(ctx, p.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	held := make(map[string]float64, len(snap.Positions))
	for _, pos := range snap.Positions {
		held[pos.Ticker] = pos.Quantity
	}
	resolve := func(ticker string) normalize.Snapshot {
		price, err := h.oracle.GetPrice(ctx, ticker)
		if err != nil {
			price = 0
		}
		return normalize.Snapshot{Cash: snap.Cash, HeldQuantity: held[ticker], ReferencePrice: price}
	}

	source := h.advisor.SourceFor(advisor.Request{
		Cash:      snap.Cash,
		Positions: snap.Positions,
		Universe:  h.universe,
	})
	outcome, err := normalize.NewLoop(source, h.maxRetries, h.logger).Run(ctx, resolve)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "decision cycle aborted")
		return
	}

	resp := adviceResponse{
		Order:       outcome.Order,
		Corrections: outcome.Corrections,
		Attempts:    outcome.Attempts,
		Fallback:    outcome.State == normalize.StateFallback,
	}
	if outcome.Order.Action != domain.ActionHold {
		tx, err := h.trades.ExecuteTrade(ctx, p.ID,
			outcome.Order.Ticker, outcome.Order.Action, outcome.Order.Quantity, outcome.Order.Rationale)
		if err != nil {
			// Normalization is advisory; execution is authoritative.
			writeDomainError(w, err)
			return
		}
		resp.Transaction = tx
	}
	writeJSON(w, http.StatusOK, resp)
}

// ownedPortfolio loads the portfolio from the path and enforces that
// the caller owns it. Foreign portfolios read as not found.
func (h *Handlers) ownedPortfolio(w http.ResponseWriter, r *http.Request) (*domain.Portfolio, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return nil, false
	}
	p, err := h.trades.GetPortfolio(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if p.OwnerID != auth.UserIDFromCtx(r.Context()) {
		writeError(w, http.StatusNotFound, "portfolio not found")
		return nil, false
	}
	return p, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPortfolioNotFound):
		writeError(w, http.StatusNotFound, domain.ErrPortfolioNotFound.Error())
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrInvalidTicker),
		errors.Is(err, domain.ErrInvalidCash):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientHoldings):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrPriceUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
