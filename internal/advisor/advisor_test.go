package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yourorg/advisor-trader/internal/domain"
)

func TestBuildPrompt_IncludesSnapshotAndUniverse(t *testing.T) {
	req := Request{
		Cash:     2500.50,
		Universe: []string{"AAPL", "SPY"},
		Positions: []domain.EnrichedPosition{
			{Position: domain.Position{Ticker: "AAPL", Quantity: 10, AvgCost: 100}},
		},
	}

	prompt := buildPrompt(req, "")

	assert.Contains(t, prompt, "AAPL, SPY")
	assert.Contains(t, prompt, "2500.50")
	assert.Contains(t, prompt, `"ticker":"AAPL"`)
	assert.NotContains(t, prompt, "rejected")
}

func TestBuildPrompt_AppendsRetryFeedback(t *testing.T) {
	prompt := buildPrompt(Request{Universe: []string{"AAPL"}},
		"previous proposal was rejected: unknown action \"YOLO\"")

	assert.Contains(t, prompt, `unknown action "YOLO"`)
	assert.Contains(t, prompt, "Correct the problem")
}
