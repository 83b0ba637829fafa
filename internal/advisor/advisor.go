// Package advisor is the external decision source: it asks a Gemini
// model for one trade proposal given a portfolio snapshot. Its output
// is untrusted by construction; the normalize package owns turning it
// into a feasible order.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/yourorg/advisor-trader/internal/domain"
	"github.com/yourorg/advisor-trader/internal/normalize"
)

const defaultModel = "gemini-2.0-flash"

type Client struct {
	genai  *genai.Client
	model  string
	logger *slog.Logger
}

func New(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("advisor: API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{genai: client, model: model, logger: logger}, nil
}

// Request is the portfolio context the model decides against.
type Request struct {
	Cash      float64
	Positions []domain.EnrichedPosition
	Universe  []string
}

// SourceFor binds a request into a normalize.Source. Each decision
// cycle gets its own source so retry feedback stays scoped to it.
func (c *Client) SourceFor(req Request) normalize.Source {
	return &source{client: c, req: req}
}

type source struct {
	client *Client
	req    Request
}

func (s *source) Propose(ctx context.Context, feedback string) ([]byte, error) {
	prompt := buildPrompt(s.req, feedback)
	resp, err := s.client.genai.Models.GenerateContent(ctx, s.client.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("generate proposal: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("empty response from model")
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	s.client.logger.Debug("advisor proposal", "model", s.client.model, "raw", text)
	return []byte(text), nil
}

func buildPrompt(req Request, feedback string) string {
	var b strings.Builder
	b.WriteString("You are a cautious portfolio advisor. Propose exactly one trade for the portfolio below, ")
	b.WriteString("or HOLD if nothing is attractive.\n\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"action": "BUY|SELL|HOLD", "ticker": "...", "quantity": <shares>, ` +
		`"amount": <currency amount, alternative to quantity>, "amount_unit": "USD", ` +
		`"order_type": "MARKET", "reasoning": "..."}`)
	b.WriteString("\n\nTradable tickers: ")
	b.WriteString(strings.Join(req.Universe, ", "))

	fmt.Fprintf(&b, "\nCash available: %.2f\n", req.Cash)
	if len(req.Positions) == 0 {
		b.WriteString("Current positions: none\n")
	} else {
		b.WriteString("Current positions:\n")
		for _, p := range req.Positions {
			entry, _ := json.Marshal(p)
			b.Write(entry)
			b.WriteByte('\n')
		}
	}

	if feedback != "" {
		b.WriteString("\nYour ")
		b.WriteString(feedback)
		b.WriteString("\nCorrect the problem and answer again with only the JSON object.\n")
	}
	return b.String()
}
