package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/advisor-trader/internal/domain"
)

func TestNormalize_HoldPassesThrough(t *testing.T) {
	order, corrections := Normalize(
		Proposal{Action: "HOLD", Reasoning: "nothing to do"},
		Snapshot{Cash: 1000, ReferencePrice: 100},
	)

	assert.Equal(t, domain.ActionHold, order.Action)
	assert.Zero(t, order.Quantity)
	assert.Empty(t, corrections)
}

func TestNormalize_NonPositiveQuantityForcesHold(t *testing.T) {
	order, corrections := Normalize(
		Proposal{Action: "BUY", Ticker: "AAPL", Quantity: -3},
		Snapshot{Cash: 1000, ReferencePrice: 100},
	)

	assert.Equal(t, domain.ActionHold, order.Action)
	assert.Zero(t, order.Quantity)
	require.Len(t, corrections, 1)
	assert.Equal(t, ReasonForcedHold, corrections[0].Reason)
}

func TestNormalize_AmountIntentConvertsAtReferencePrice(t *testing.T) {
	// {BUY, intent_amount=5000 USD} at price 250 converts to 20 shares
	// before any feasibility check.
	order, corrections := Normalize(
		Proposal{Action: "BUY", Ticker: "AAPL", Amount: 5000, AmountUnit: "USD"},
		Snapshot{Cash: 10000, ReferencePrice: 250},
	)

	assert.Equal(t, domain.ActionBuy, order.Action)
	assert.Equal(t, 20.0, order.Quantity)
	assert.Empty(t, corrections)
}

func TestNormalize_AmountIntentUsesLimitPriceWhenPresent(t *testing.T) {
	order, _ := Normalize(
		Proposal{Action: "BUY", Ticker: "AAPL", Amount: 1000, OrderType: "LIMIT", LimitPrice: 200},
		Snapshot{Cash: 10000, ReferencePrice: 250},
	)

	assert.Equal(t, 5.0, order.Quantity)
	require.NotNil(t, order.LimitPrice)
	assert.Equal(t, 200.0, *order.LimitPrice)
}

func TestNormalize_AmountBelowOneShareForcesHold(t *testing.T) {
	order, corrections := Normalize(
		Proposal{Action: "BUY", Ticker: "AAPL", Amount: 99},
		Snapshot{Cash: 10000, ReferencePrice: 100},
	)

	assert.Equal(t, domain.ActionHold, order.Action)
	require.Len(t, corrections, 1)
	assert.Equal(t, ReasonForcedHold, corrections[0].Reason)
}

func TestNormalize_BuyClampsToMaxAffordable(t *testing.T) {
	order, corrections := Normalize(
		Proposal{Action: "BUY", Ticker: "AAPL", Quantity: 11},
		Snapshot{Cash: 1000, ReferencePrice: 100},
	)

	assert.Equal(t, domain.ActionBuy, order.Action)
	assert.Equal(t, 10.0, order.Quantity)
	require.Len(t, corrections, 1)
	assert.Equal(t, ReasonClamped, corrections[0].Reason)
	assert.Equal(t, 11.0, corrections[0].Original)
	assert.Equal(t, 10.0, corrections[0].Adjusted)
}

func TestNormalize_BuyAtExactAffordabilityIsUntouched(t *testing.T) {
	order, corrections := Normalize(
		Proposal{Action: "BUY", Ticker: "AAPL", Quantity: 10},
		Snapshot{Cash: 1000, ReferencePrice: 100},
	)

	assert.Equal(t, 10.0, order.Quantity)
	assert.Empty(t, corrections)
}

func TestNormalize_BuyWithNoCashForcesHold(t *testing.T) {
	order, corrections := Normalize(
		Proposal{Action: "BUY", Ticker: "AAPL", Quantity: 5},
		Snapshot{Cash: 40, ReferencePrice: 100},
	)

	assert.Equal(t, domain.ActionHold, order.Action)
	require.Len(t, corrections, 1)
	assert.Equal(t, ReasonInsufficientCash, corrections[0].Reason)
}

func TestNormalize_SellClampsToHoldings(t *testing.T) {
	// SELL 50 against 30 held clamps to 30 and stays a SELL.
	order, corrections := Normalize(
		Proposal{Action: "SELL", Ticker: "AAPL", Quantity: 50},
		Snapshot{Cash: 0, HeldQuantity: 30, ReferencePrice: 100},
	)

	assert.Equal(t, domain.ActionSell, order.Action)
	assert.Equal(t, 30.0, order.Quantity)
	require.Len(t, corrections, 1)
	assert.Equal(t, ReasonClamped, corrections[0].Reason)
}

func TestNormalize_SellWithNoHoldingsForcesHold(t *testing.T) {
	order, corrections := Normalize(
		Proposal{Action: "SELL", Ticker: "AAPL", Quantity: 5},
		Snapshot{Cash: 500, HeldQuantity: 0, ReferencePrice: 100},
	)

	assert.Equal(t, domain.ActionHold, order.Action)
	require.Len(t, corrections, 1)
	assert.Equal(t, ReasonNoHoldings, corrections[0].Reason)
}

func TestNormalize_FeasibleSellPassesThrough(t *testing.T) {
	order, corrections := Normalize(
		Proposal{Action: "SELL", Ticker: "AAPL", Quantity: 20, Reasoning: "take profit"},
		Snapshot{HeldQuantity: 30, ReferencePrice: 100},
	)

	assert.Equal(t, domain.ActionSell, order.Action)
	assert.Equal(t, 20.0, order.Quantity)
	assert.Equal(t, "take profit", order.Rationale)
	assert.Empty(t, corrections)
}

func TestNormalize_NoWorkingPriceForcesHold(t *testing.T) {
	order, corrections := Normalize(
		Proposal{Action: "BUY", Ticker: "AAPL", Quantity: 5},
		Snapshot{Cash: 1000, ReferencePrice: 0},
	)

	assert.Equal(t, domain.ActionHold, order.Action)
	require.Len(t, corrections, 1)
	assert.Equal(t, ReasonForcedHold, corrections[0].Reason)
}

func TestParseProposal_RejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":       `buy some apple`,
		"unknown action": `{"action":"YOLO","ticker":"AAPL","quantity":1}`,
		"missing ticker": `{"action":"BUY","quantity":1}`,
		"bad order type": `{"action":"BUY","ticker":"AAPL","quantity":1,"order_type":"STOP"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProposal([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestParseProposal_NormalizesCaseAndIgnoresExtras(t *testing.T) {
	p, err := ParseProposal([]byte(
		`{"action":"buy","ticker":"aapl","quantity":3,"confidence":0.9,"reasoning":"momentum"}`))

	require.NoError(t, err)
	assert.Equal(t, "BUY", p.Action)
	assert.Equal(t, "AAPL", p.Ticker)
	assert.Equal(t, 3.0, p.Quantity)
	assert.Equal(t, "momentum", p.Reasoning)
}

func TestParseProposal_HoldNeedsNoTicker(t *testing.T) {
	p, err := ParseProposal([]byte(`{"action":"HOLD","reasoning":"wait"}`))

	require.NoError(t, err)
	assert.Equal(t, "HOLD", p.Action)
}
