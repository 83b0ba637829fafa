// Package replay derives positions from a portfolio's transaction log.
// The log is the sole source of truth: there is no stored position
// state, only this fold.
package replay

import (
	"context"
	"sort"

	"github.com/yourorg/advisor-trader/internal/domain"
)

// Positions folds an ordered transaction log into per-ticker positions.
// Pure and deterministic: the same log always yields the same result.
//
// A SELL reduces cost basis at the average cost in effect before that
// sell. Quantity is clamped at zero, and a position that reaches zero
// resets its basis, so a fresh buy starts a fresh average.
func Positions(log []domain.Transaction) map[string]domain.Position {
	positions := make(map[string]domain.Position)
	for _, tx := range log {
		p := positions[tx.Ticker]
		p.Ticker = tx.Ticker
		switch tx.Type {
		case domain.ActionBuy:
			p.CostBasis += tx.Quantity * tx.PricePerShare
			p.Quantity += tx.Quantity
			p.AvgCost = p.CostBasis / p.Quantity
		case domain.ActionSell:
			p.CostBasis -= tx.Quantity * p.AvgCost
			p.Quantity -= tx.Quantity
			if p.Quantity <= 0 {
				p.Quantity = 0
				p.AvgCost = 0
				p.CostBasis = 0
			}
		}
		positions[tx.Ticker] = p
	}
	return positions
}

// HeldQuantity returns the replayed quantity for one ticker.
func HeldQuantity(log []domain.Transaction, ticker string) float64 {
	return Positions(log)[ticker].Quantity
}

// Enrich values open positions against the price oracle. A ticker whose
// price cannot be resolved keeps zero market value and P&L instead of
// failing the whole report. Output is sorted by ticker.
func Enrich(ctx context.Context, oracle domain.PriceOracle, positions map[string]domain.Position) []domain.EnrichedPosition {
	out := make([]domain.EnrichedPosition, 0, len(positions))
	for _, p := range positions {
		if p.Quantity <= 0 {
			continue
		}
		e := domain.EnrichedPosition{Position: p}
		if price, err := oracle.GetPrice(ctx, p.Ticker); err == nil {
			e.MarketValue = price * p.Quantity
			e.UnrealizedPL = e.MarketValue - p.Quantity*p.AvgCost
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
