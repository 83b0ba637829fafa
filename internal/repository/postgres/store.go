package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/yourorg/advisor-trader/internal/domain"
	"github.com/yourorg/advisor-trader/internal/execution"
)

// Store is the durable ledger: portfolios with their cash balance and
// an append-only transactions table. The per-portfolio exclusive lock
// is a SELECT ... FOR UPDATE on the portfolio row, so the cash read,
// the log append and the cash update commit as one database
// transaction.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreatePortfolio(ctx context.Context, p *domain.Portfolio) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO portfolios (id, owner_id, name, cash_balance, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	return s.db.QueryRowContext(ctx, query, p.ID, p.OwnerID, p.Name, p.CashBalance, p.IsActive).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (s *Store) GetPortfolio(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	var p domain.Portfolio
	err := s.db.GetContext(ctx, &p, `SELECT * FROM portfolios WHERE id = $1 AND is_active`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("get portfolio: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPortfolios(ctx context.Context, ownerID uuid.UUID) ([]domain.Portfolio, error) {
	var out []domain.Portfolio
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM portfolios WHERE owner_id = $1 AND is_active ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	return out, nil
}

// TransactionLog returns the canonical replay order. The serial id is
// the tie-break for entries sharing a timestamp, which keeps the order
// stable across reads.
func (s *Store) TransactionLog(ctx context.Context, portfolioID uuid.UUID) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM transactions WHERE portfolio_id = $1 ORDER BY executed_at, id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, portfolioID uuid.UUID, limit int) ([]domain.Transaction, error) {
	query := `SELECT * FROM transactions WHERE portfolio_id = $1 ORDER BY executed_at DESC, id DESC`
	args := []any{portfolioID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var out []domain.Transaction
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (s *Store) WithPortfolioLock(ctx context.Context, portfolioID uuid.UUID, fn func(execution.LockedPortfolio) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var p domain.Portfolio
	err = tx.GetContext(ctx, &p,
		`SELECT * FROM portfolios WHERE id = $1 AND is_active FOR UPDATE`, portfolioID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPortfolioNotFound
		}
		return fmt.Errorf("lock portfolio: %w", err)
	}

	if err := fn(&lockedPortfolio{tx: tx, portfolio: &p}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// lockedPortfolio brackets the row lock held by its enclosing database
// transaction; every write goes through that transaction so a failure
// anywhere rolls the whole critical section back.
type lockedPortfolio struct {
	tx        *sqlx.Tx
	portfolio *domain.Portfolio
}

func (lp *lockedPortfolio) CashBalance() float64 { return lp.portfolio.CashBalance }

func (lp *lockedPortfolio) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := lp.tx.SelectContext(ctx, &out,
		`SELECT * FROM transactions WHERE portfolio_id = $1 ORDER BY executed_at, id`, lp.portfolio.ID)
	if err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}
	return out, nil
}

func (lp *lockedPortfolio) Append(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (portfolio_id, ticker, type, quantity, price_per_share, rationale)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, executed_at`
	return lp.tx.QueryRowContext(ctx, query,
		t.PortfolioID, t.Ticker, t.Type, t.Quantity, t.PricePerShare, t.Rationale).
		Scan(&t.ID, &t.ExecutedAt)
}

func (lp *lockedPortfolio) SetCashBalance(ctx context.Context, balance float64) error {
	_, err := lp.tx.ExecContext(ctx,
		`UPDATE portfolios SET cash_balance = $1, updated_at = NOW() WHERE id = $2`,
		balance, lp.portfolio.ID)
	return err
}
