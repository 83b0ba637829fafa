package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	ActionHold TradeAction = "HOLD"
)

type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
)

type User struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Email        string    `db:"email"         json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// Portfolio holds a cash balance; everything else about it is derived
// from its transaction log. Cash is only ever written by the trade
// execution service, inside the per-portfolio critical section.
type Portfolio struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	OwnerID     uuid.UUID `db:"owner_id"     json:"owner_id"`
	Name        string    `db:"name"         json:"name"`
	CashBalance float64   `db:"cash_balance" json:"cash_balance"`
	IsActive    bool      `db:"is_active"    json:"is_active"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}

// Transaction is one immutable entry in a portfolio's append-only log.
// The serial ID doubles as the tie-break when two entries share an
// executed_at timestamp, so replay order is stable across reads.
type Transaction struct {
	ID            int64       `db:"id"              json:"id"`
	PortfolioID   uuid.UUID   `db:"portfolio_id"    json:"portfolio_id"`
	Ticker        string      `db:"ticker"          json:"ticker"`
	Type          TradeAction `db:"type"            json:"type"`
	Quantity      float64     `db:"quantity"        json:"quantity"`
	PricePerShare float64     `db:"price_per_share" json:"price_per_share"`
	ExecutedAt    time.Time   `db:"executed_at"     json:"executed_at"`
	Rationale     string      `db:"rationale"       json:"rationale"`
}

// Position is derived state, recomputed by replaying the transaction
// log. It is never stored authoritatively.
type Position struct {
	Ticker    string  `json:"ticker"`
	Quantity  float64 `json:"quantity"`
	AvgCost   float64 `json:"avg_cost"`
	CostBasis float64 `json:"cost_basis"`
}

// EnrichedPosition adds current market value and unrealized P&L. When
// no price is available for the ticker both fields stay zero.
type EnrichedPosition struct {
	Position
	MarketValue  float64 `json:"market_value"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}

type PortfolioSnapshot struct {
	PortfolioID uuid.UUID          `json:"portfolio_id"`
	Cash        float64            `json:"cash"`
	Positions   []EnrichedPosition `json:"positions"`
	TotalEquity float64            `json:"total_equity"`
}

// Order is an in-flight trade intent. It only becomes a Transaction if
// it survives normalization and its action is not HOLD.
type Order struct {
	Action     TradeAction `json:"action"`
	Ticker     string      `json:"ticker"`
	Quantity   float64     `json:"quantity"`
	Kind       OrderKind   `json:"kind"`
	LimitPrice *float64    `json:"limit_price,omitempty"`
	Rationale  string      `json:"rationale"`
}

type PriceTick struct {
	Ticker    string    `json:"ticker"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceOracle resolves a current price for a ticker. Implementations
// return ErrPriceUnavailable for missing or non-positive prices; no
// default price is ever substituted.
type PriceOracle interface {
	GetPrice(ctx context.Context, ticker string) (float64, error)
}
