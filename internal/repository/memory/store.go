// Package memory is an in-process implementation of the ledger store,
// used by tests and local development. It keeps the same contract as
// the postgres store: append-only per-portfolio logs with stable
// ordering, and an exclusive per-portfolio critical section whose
// staged writes commit atomically or not at all.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/advisor-trader/internal/domain"
	"github.com/yourorg/advisor-trader/internal/execution"
)

type Store struct {
	mu         sync.RWMutex
	portfolios map[uuid.UUID]*domain.Portfolio
	logs       map[uuid.UUID][]domain.Transaction
	locks      map[uuid.UUID]*sync.Mutex
	nextTxID   int64
}

func NewStore() *Store {
	return &Store{
		portfolios: make(map[uuid.UUID]*domain.Portfolio),
		logs:       make(map[uuid.UUID][]domain.Transaction),
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Store) CreatePortfolio(_ context.Context, p *domain.Portfolio) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *p
	s.portfolios[p.ID] = &stored
	return nil
}

func (s *Store) GetPortfolio(_ context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[id]
	if !ok || !p.IsActive {
		return nil, domain.ErrPortfolioNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *Store) ListPortfolios(_ context.Context, ownerID uuid.UUID) ([]domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Portfolio
	for _, p := range s.portfolios {
		if p.OwnerID == ownerID && p.IsActive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// TransactionLog returns the log in replay order. Entries are appended
// with monotonically increasing ids, so insertion order is the
// deterministic tie-break even for identical timestamps.
func (s *Store) TransactionLog(_ context.Context, portfolioID uuid.UUID) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.logs[portfolioID]
	out := make([]domain.Transaction, len(log))
	copy(out, log)
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, portfolioID uuid.UUID, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.logs[portfolioID]
	out := make([]domain.Transaction, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		out = append(out, log[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) WithPortfolioLock(_ context.Context, portfolioID uuid.UUID, fn func(execution.LockedPortfolio) error) error {
	s.mu.Lock()
	p, ok := s.portfolios[portfolioID]
	if !ok || !p.IsActive {
		s.mu.Unlock()
		return domain.ErrPortfolioNotFound
	}
	lock := s.locks[portfolioID]
	if lock == nil {
		lock = &sync.Mutex{}
		s.locks[portfolioID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	lp := &lockedPortfolio{store: s, id: portfolioID, cash: s.portfolios[portfolioID].CashBalance}
	s.mu.RUnlock()

	if err := fn(lp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.logs[portfolioID] = append(s.logs[portfolioID], lp.pending...)
	if lp.cashSet {
		s.portfolios[portfolioID].CashBalance = lp.newCash
		s.portfolios[portfolioID].UpdatedAt = now
	}
	return nil
}

type lockedPortfolio struct {
	store   *Store
	id      uuid.UUID
	cash    float64
	pending []domain.Transaction
	newCash float64
	cashSet bool
}

func (lp *lockedPortfolio) CashBalance() float64 { return lp.cash }

func (lp *lockedPortfolio) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	log, err := lp.store.TransactionLog(ctx, lp.id)
	if err != nil {
		return nil, err
	}
	return append(log, lp.pending...), nil
}

func (lp *lockedPortfolio) Append(_ context.Context, tx *domain.Transaction) error {
	lp.store.mu.Lock()
	lp.store.nextTxID++
	tx.ID = lp.store.nextTxID
	lp.store.mu.Unlock()

	tx.ExecutedAt = time.Now().UTC()
	lp.pending = append(lp.pending, *tx)
	return nil
}

func (lp *lockedPortfolio) SetCashBalance(_ context.Context, balance float64) error {
	lp.newCash = balance
	lp.cashSet = true
	return nil
}
