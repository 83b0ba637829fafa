// Package normalize converts untrusted trade proposals into orders
// that are feasible against a live portfolio snapshot. Infeasibility
// is expressed as a correction on the returned order, never as an
// error: the caller always gets back an unchanged order, a clamped
// order, or a safe HOLD.
package normalize

import (
	"fmt"
	"math"

	"github.com/yourorg/advisor-trader/internal/domain"
)

// Snapshot is the live view a proposal is resolved against.
type Snapshot struct {
	Cash           float64
	HeldQuantity   float64
	ReferencePrice float64
}

// Correction reasons. Clamping is an accepted adjustment, not a
// failure, and never triggers a decision-source retry.
const (
	ReasonForcedHold       = "forced hold"
	ReasonInsufficientCash = "insufficient cash"
	ReasonNoHoldings       = "no holdings"
	ReasonClamped          = "clamped"
	ReasonFallback         = "decision source fallback"
)

// Correction records one adjustment the normalizer made, with a
// human-readable detail suitable for surfacing to the caller.
type Correction struct {
	Reason   string  `json:"reason"`
	Detail   string  `json:"detail"`
	Original float64 `json:"original_quantity"`
	Adjusted float64 `json:"adjusted_quantity"`
}

// Normalize applies the feasibility rules in order:
//
//  1. HOLD, or a non-positive size, normalizes to HOLD/0.
//  2. A currency-amount intent converts to shares at the working price
//     (explicit positive limit price, else the reference price).
//  3. A BUY above max affordable clamps to it, or HOLDs at zero cash.
//  4. A SELL above holdings clamps to them, or HOLDs with nothing held.
//  5. Anything else passes through untouched.
func Normalize(p Proposal, snap Snapshot) (domain.Order, []Correction) {
	order := domain.Order{
		Action:    p.action(),
		Ticker:    p.Ticker,
		Quantity:  p.Quantity,
		Kind:      p.kind(),
		Rationale: p.Reasoning,
	}
	if order.Kind == domain.KindLimit && p.LimitPrice > 0 {
		limit := p.LimitPrice
		order.LimitPrice = &limit
	}

	if order.Action == domain.ActionHold {
		order.Quantity = 0
		return order, nil
	}
	if order.Quantity <= 0 && !p.amountIntent() {
		return hold(order, ReasonForcedHold,
			fmt.Sprintf("%s with non-positive quantity %g", order.Action, order.Quantity))
	}

	price := snap.ReferencePrice
	if order.LimitPrice != nil {
		price = *order.LimitPrice
	}
	if price <= 0 {
		// No usable price means neither conversion nor affordability
		// can be assessed; execution would fail on it anyway.
		return hold(order, ReasonForcedHold, "no working price for "+order.Ticker)
	}
	if p.amountIntent() {
		order.Quantity = math.Floor(p.Amount / price)
		if order.Quantity <= 0 {
			return hold(order, ReasonForcedHold,
				fmt.Sprintf("amount %.2f buys less than one share at %.2f", p.Amount, price))
		}
	}

	switch order.Action {
	case domain.ActionBuy:
		maxAffordable := math.Floor(snap.Cash / price)
		if order.Quantity > maxAffordable {
			if maxAffordable <= 0 {
				return hold(order, ReasonInsufficientCash,
					fmt.Sprintf("cash %.2f cannot buy a single share at %.2f", snap.Cash, price))
			}
			return clamp(order, maxAffordable,
				fmt.Sprintf("requested %g shares, cash %.2f affords %g at %.2f",
					order.Quantity, snap.Cash, maxAffordable, price))
		}
	case domain.ActionSell:
		if order.Quantity > snap.HeldQuantity {
			if snap.HeldQuantity <= 0 {
				return hold(order, ReasonNoHoldings, "nothing held in "+order.Ticker)
			}
			return clamp(order, snap.HeldQuantity,
				fmt.Sprintf("requested %g shares, only %g held", order.Quantity, snap.HeldQuantity))
		}
	}

	return order, nil
}

func hold(order domain.Order, reason, detail string) (domain.Order, []Correction) {
	c := Correction{Reason: reason, Detail: detail, Original: order.Quantity}
	order.Action = domain.ActionHold
	order.Quantity = 0
	return order, []Correction{c}
}

func clamp(order domain.Order, to float64, detail string) (domain.Order, []Correction) {
	c := Correction{Reason: ReasonClamped, Detail: detail, Original: order.Quantity, Adjusted: to}
	order.Quantity = to
	return order, []Correction{c}
}
