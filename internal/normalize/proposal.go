package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yourorg/advisor-trader/internal/domain"
)

// Proposal is the payload shape a decision source must produce. Trade
// size is either a share count (quantity) or a currency amount
// (amount + amount_unit); the normalizer converts the latter. Extra
// fields in the payload are ignored.
type Proposal struct {
	Action     string  `json:"action"`
	Ticker     string  `json:"ticker"`
	Quantity   float64 `json:"quantity"`
	Amount     float64 `json:"amount"`
	AmountUnit string  `json:"amount_unit"`
	OrderType  string  `json:"order_type"`
	LimitPrice float64 `json:"limit_price"`
	Reasoning  string  `json:"reasoning"`
}

func (p Proposal) action() domain.TradeAction { return domain.TradeAction(p.Action) }

func (p Proposal) kind() domain.OrderKind {
	if p.OrderType == string(domain.KindLimit) {
		return domain.KindLimit
	}
	return domain.KindMarket
}

// amountIntent reports whether the proposal sized the trade as a
// currency amount rather than a share count.
func (p Proposal) amountIntent() bool {
	return p.Quantity <= 0 && p.Amount > 0
}

// ParseProposal decodes and structurally validates a raw proposal.
// Errors here mean the payload is unusable and the caller should
// retry the source; numeric infeasibility is not checked here, that
// is Normalize's job.
func ParseProposal(raw []byte) (Proposal, error) {
	var p Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return Proposal{}, fmt.Errorf("proposal is not valid JSON: %w", err)
	}

	p.Action = strings.ToUpper(strings.TrimSpace(p.Action))
	switch p.action() {
	case domain.ActionBuy, domain.ActionSell, domain.ActionHold:
	default:
		return Proposal{}, fmt.Errorf("unknown action %q, expected BUY, SELL or HOLD", p.Action)
	}

	p.Ticker = strings.ToUpper(strings.TrimSpace(p.Ticker))
	if p.action() != domain.ActionHold && p.Ticker == "" {
		return Proposal{}, fmt.Errorf("ticker is required for a %s proposal", p.Action)
	}

	p.OrderType = strings.ToUpper(strings.TrimSpace(p.OrderType))
	switch p.OrderType {
	case "", string(domain.KindMarket), string(domain.KindLimit):
	default:
		return Proposal{}, fmt.Errorf("unknown order type %q, expected MARKET or LIMIT", p.OrderType)
	}

	return p, nil
}
