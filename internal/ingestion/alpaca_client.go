// Package ingestion streams live trades from the Alpaca IEX feed into
// the redis last-price cache that backs the price oracle. The oracle
// never falls back to a default price, so this feed is what makes
// tickers tradable at all.
package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yourorg/advisor-trader/internal/domain"
	redisRepo "github.com/yourorg/advisor-trader/internal/repository/redis"
)

const alpacaWSURL = "wss://stream.data.alpaca.markets/v2/iex"

type AlpacaClient struct {
	apiKey    string
	apiSecret string
	tickers   []string
	priceRepo *redisRepo.PriceRepo
	logger    *slog.Logger
}

// NewAlpacaClient subscribes to trade events for the given tickers;
// these should match the universe the advisor is allowed to trade.
func NewAlpacaClient(key, secret string, tickers []string, repo *redisRepo.PriceRepo, logger *slog.Logger) *AlpacaClient {
	return &AlpacaClient{
		apiKey:    key,
		apiSecret: secret,
		tickers:   tickers,
		priceRepo: repo,
		logger:    logger,
	}
}

// Run maintains the feed connection until ctx is cancelled, redialing
// with exponential backoff capped at one minute.
func (c *AlpacaClient) Run(ctx context.Context) {
	backoff := time.Second
	maxBackoff := 60 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		err := c.connect(ctx)
		if err == nil {
			backoff = time.Second
			continue
		}
		c.logger.Error("market data feed disconnected", "err", err, "retrying_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

type alpacaMsg struct {
	T  string  `json:"T"`
	S  string  `json:"S"`
	P  float64 `json:"p"`
	Sz float64 `json:"s"`
	Ts string  `json:"t"`
}

func (c *AlpacaClient) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, alpacaWSURL, nil)
	if err != nil {
		return err
	}
	defer func() {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	if _, _, err := conn.ReadMessage(); err != nil {
		return err
	}

	authMsg, _ := json.Marshal(map[string]string{
		"action": "auth",
		"key":    c.apiKey,
		"secret": c.apiSecret,
	})
	if err := conn.WriteMessage(websocket.TextMessage, authMsg); err != nil {
		return err
	}

	_, authResp, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	var authMsgs []alpacaMsg
	if err := json.Unmarshal(authResp, &authMsgs); err != nil {
		return err
	}
	if len(authMsgs) == 0 || authMsgs[0].T != "success" {
		c.logger.Warn("market data auth failed", "response", string(authResp))
		return nil
	}

	subMsg, _ := json.Marshal(map[string]interface{}{
		"action": "subscribe",
		"trades": c.tickers,
	})
	if err := conn.WriteMessage(websocket.TextMessage, subMsg); err != nil {
		return err
	}

	if _, _, err := conn.ReadMessage(); err != nil {
		return err
	}

	c.logger.Info("market data feed connected", "tickers", c.tickers)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msgs []json.RawMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			continue
		}
		for _, raw := range msgs {
			var msg alpacaMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			if msg.T != "t" {
				continue
			}
			ts, err := time.Parse(time.RFC3339Nano, msg.Ts)
			if err != nil {
				ts = time.Now()
			}
			tick := domain.PriceTick{
				Ticker:    msg.S,
				Price:     msg.P,
				Size:      msg.Sz,
				Timestamp: ts,
			}
			if err := c.priceRepo.Publish(ctx, tick); err != nil {
				c.logger.Error("failed to publish price tick", "err", err)
			}
		}
	}
}
