// Package execution owns every write to the ledger. A trade is
// validated and committed in one per-portfolio critical section, so a
// rejected trade leaves portfolio state untouched and two concurrent
// trades on the same portfolio can never both spend the same cash.
package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yourorg/advisor-trader/internal/domain"
	"github.com/yourorg/advisor-trader/internal/replay"
)

// Ledger is the durable store contract. TransactionLog returns the
// canonical replay order (executed_at, tie-broken by serial id) and is
// stable across reads; ListTransactions is the recent-first read used
// by callers, capped by limit when limit > 0.
type Ledger interface {
	CreatePortfolio(ctx context.Context, p *domain.Portfolio) error
	GetPortfolio(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error)
	ListPortfolios(ctx context.Context, ownerID uuid.UUID) ([]domain.Portfolio, error)
	TransactionLog(ctx context.Context, portfolioID uuid.UUID) ([]domain.Transaction, error)
	ListTransactions(ctx context.Context, portfolioID uuid.UUID, limit int) ([]domain.Transaction, error)

	// WithPortfolioLock runs fn while holding the portfolio's exclusive
	// lock. Writes staged through the locked view commit atomically when
	// fn returns nil and are discarded when it returns an error. Locks
	// are scoped per portfolio: unrelated portfolios proceed in parallel.
	WithPortfolioLock(ctx context.Context, portfolioID uuid.UUID, fn func(LockedPortfolio) error) error
}

// LockedPortfolio is the view available inside the critical section.
type LockedPortfolio interface {
	CashBalance() float64
	Transactions(ctx context.Context) ([]domain.Transaction, error)
	Append(ctx context.Context, tx *domain.Transaction) error
	SetCashBalance(ctx context.Context, balance float64) error
}

type TradeService struct {
	ledger Ledger
	oracle domain.PriceOracle
	logger *slog.Logger
}

func NewTradeService(ledger Ledger, oracle domain.PriceOracle, logger *slog.Logger) *TradeService {
	return &TradeService{ledger: ledger, oracle: oracle, logger: logger}
}

func (s *TradeService) CreatePortfolio(ctx context.Context, ownerID uuid.UUID, name string, initialCash float64) (*domain.Portfolio, error) {
	if initialCash < 0 {
		return nil, domain.ErrInvalidCash
	}
	if name == "" {
		name = "Portfolio"
	}
	p := &domain.Portfolio{
		OwnerID:     ownerID,
		Name:        name,
		CashBalance: initialCash,
		IsActive:    true,
	}
	if err := s.ledger.CreatePortfolio(ctx, p); err != nil {
		return nil, fmt.Errorf("create portfolio: %w", err)
	}
	return p, nil
}

func (s *TradeService) ListPortfolios(ctx context.Context, ownerID uuid.UUID) ([]domain.Portfolio, error) {
	return s.ledger.ListPortfolios(ctx, ownerID)
}

func (s *TradeService) GetPortfolio(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	return s.ledger.GetPortfolio(ctx, id)
}

// GetSnapshot replays the portfolio's log into positions, values them
// against the oracle, and totals equity. Read-only: it takes no lock
// and simply reflects whatever is currently committed.
func (s *TradeService) GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.PortfolioSnapshot, error) {
	p, err := s.ledger.GetPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	log, err := s.ledger.TransactionLog(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}
	positions := replay.Enrich(ctx, s.oracle, replay.Positions(log))

	snapshot := &domain.PortfolioSnapshot{
		PortfolioID: p.ID,
		Cash:        p.CashBalance,
		Positions:   positions,
		TotalEquity: p.CashBalance,
	}
	for _, pos := range positions {
		snapshot.TotalEquity += pos.MarketValue
	}
	return snapshot, nil
}

func (s *TradeService) ListTransactions(ctx context.Context, portfolioID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if _, err := s.ledger.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.ledger.ListTransactions(ctx, portfolioID, limit)
}

// ExecuteTrade validates and commits one trade. The price is resolved
// before the critical section to keep lock hold time down; funds and
// holdings are re-checked under the lock regardless of any upstream
// normalization, and the transaction append plus cash update commit as
// one unit or not at all.
func (s *TradeService) ExecuteTrade(ctx context.Context, portfolioID uuid.UUID, ticker string, action domain.TradeAction, quantity float64, rationale string) (*domain.Transaction, error) {
	switch action {
	case domain.ActionBuy, domain.ActionSell:
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAction, action)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: got %g", domain.ErrInvalidQuantity, quantity)
	}
	if ticker == "" {
		return nil, domain.ErrInvalidTicker
	}

	price, err := s.oracle.GetPrice(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("resolve price for %s: %w", ticker, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("price %g for %s: %w", price, ticker, domain.ErrPriceUnavailable)
	}
	total := price * quantity

	var committed *domain.Transaction
	err = s.ledger.WithPortfolioLock(ctx, portfolioID, func(lp LockedPortfolio) error {
		cash := lp.CashBalance()

		switch action {
		case domain.ActionBuy:
			if total > cash {
				return fmt.Errorf("%w: need %.2f, have %.2f", domain.ErrInsufficientFunds, total, cash)
			}
			cash -= total
		case domain.ActionSell:
			log, err := lp.Transactions(ctx)
			if err != nil {
				return fmt.Errorf("read transaction log: %w", err)
			}
			held := replay.HeldQuantity(log, ticker)
			if quantity > held {
				return fmt.Errorf("%w: want to sell %g, hold %g", domain.ErrInsufficientHoldings, quantity, held)
			}
			cash += total
		}

		tx := &domain.Transaction{
			PortfolioID:   portfolioID,
			Ticker:        ticker,
			Type:          action,
			Quantity:      quantity,
			PricePerShare: price,
			Rationale:     rationale,
		}
		if err := lp.Append(ctx, tx); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		if err := lp.SetCashBalance(ctx, cash); err != nil {
			return fmt.Errorf("update cash balance: %w", err)
		}
		committed = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trade executed",
		"portfolio_id", portfolioID, "ticker", ticker, "action", action,
		"quantity", quantity, "price", price)
	return committed, nil
}
