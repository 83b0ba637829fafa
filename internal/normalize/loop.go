package normalize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yourorg/advisor-trader/internal/domain"
)

// Source produces raw trade proposal payloads. On a retry the prior
// failure is passed back as feedback so the source can correct itself;
// feedback is empty on the first request.
type Source interface {
	Propose(ctx context.Context, feedback string) ([]byte, error)
}

// State of the decision loop. Done and Fallback are terminal.
type State int

const (
	StateRequesting State = iota
	StateValidating
	StateRetrying
	StateDone
	StateFallback
)

func (s State) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateValidating:
		return "validating"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	case StateFallback:
		return "fallback"
	}
	return "unknown"
}

// Outcome is the terminal result of one decision cycle. The order is
// always usable: a Fallback outcome carries a HOLD whose rationale
// records the last failure.
type Outcome struct {
	Order       domain.Order `json:"order"`
	Corrections []Correction `json:"corrections"`
	State       State        `json:"-"`
	Attempts    int          `json:"attempts"`
}

// Loop drives a Source through Requesting → Validating until Done, or
// through at most maxRetries failed attempts into Fallback. Corrections
// applied by Normalize are accepted results, not retry triggers.
type Loop struct {
	source     Source
	maxRetries int
	logger     *slog.Logger
}

func NewLoop(source Source, maxRetries int, logger *slog.Logger) *Loop {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Loop{source: source, maxRetries: maxRetries, logger: logger}
}

// SnapshotResolver builds the live snapshot for the ticker a proposal
// names. It must not fail: an unknown or unpriceable ticker yields a
// zero reference price, which Normalize turns into a safe HOLD.
type SnapshotResolver func(ticker string) Snapshot

// Run executes one bounded decision cycle. The only error it returns
// is context cancellation; every source or parse failure is absorbed
// by the retry bound and the HOLD fallback.
func (l *Loop) Run(ctx context.Context, resolve SnapshotResolver) (Outcome, error) {
	var (
		state    = StateRequesting
		raw      []byte
		feedback string
		lastErr  error
		failures int
		attempts int
	)

	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		switch state {
		case StateRequesting:
			attempts++
			payload, err := l.source.Propose(ctx, feedback)
			if err != nil {
				lastErr = fmt.Errorf("decision source: %w", err)
				state = l.failureState(&failures)
				continue
			}
			raw = payload
			state = StateValidating

		case StateValidating:
			p, err := ParseProposal(raw)
			if err != nil {
				lastErr = err
				state = l.failureState(&failures)
				continue
			}
			order, corrections := Normalize(p, resolve(p.Ticker))
			if len(corrections) > 0 {
				l.logger.Info("proposal corrected",
					"action", order.Action, "ticker", order.Ticker,
					"reason", corrections[0].Reason, "detail", corrections[0].Detail)
			}
			return Outcome{Order: order, Corrections: corrections, State: StateDone, Attempts: attempts}, nil

		case StateRetrying:
			feedback = fmt.Sprintf("previous proposal was rejected: %v", lastErr)
			l.logger.Warn("retrying decision source", "attempt", attempts, "err", lastErr)
			state = StateRequesting

		case StateFallback:
			l.logger.Warn("decision source exhausted, holding", "attempts", attempts, "err", lastErr)
			order := domain.Order{
				Action:    domain.ActionHold,
				Kind:      domain.KindMarket,
				Rationale: fmt.Sprintf("no actionable proposal after %d attempts: %v", attempts, lastErr),
			}
			corrections := []Correction{{Reason: ReasonFallback, Detail: lastErr.Error()}}
			return Outcome{Order: order, Corrections: corrections, State: StateFallback, Attempts: attempts}, nil
		}
	}
}

func (l *Loop) failureState(failures *int) State {
	*failures++
	if *failures >= l.maxRetries {
		return StateFallback
	}
	return StateRetrying
}
