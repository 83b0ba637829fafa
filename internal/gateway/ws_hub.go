package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	redisRepo "github.com/yourorg/advisor-trader/internal/repository/redis"
)

type subscription struct {
	client *Client
	ticker string
}

// Hub fans live price ticks out to websocket clients. One redis
// subscription is held per ticker with at least one subscriber and
// torn down when the last subscriber leaves.
type Hub struct {
	clients      map[*Client]bool
	subs         map[string]map[*Client]bool
	redisCancels map[string]context.CancelFunc

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription

	priceRepo *redisRepo.PriceRepo
	logger    *slog.Logger
}

func NewHub(priceRepo *redisRepo.PriceRepo, logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		subs:         make(map[string]map[*Client]bool),
		redisCancels: make(map[string]context.CancelFunc),
		register:     make(chan *Client, 64),
		unregister:   make(chan *Client, 64),
		subscribe:    make(chan subscription, 64),
		unsubscribe:  make(chan subscription, 64),
		priceRepo:    priceRepo,
		logger:       logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for ticker, clients := range h.subs {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							if cancel, ok := h.redisCancels[ticker]; ok {
								cancel()
								delete(h.redisCancels, ticker)
							}
							delete(h.subs, ticker)
						}
					}
				}
				close(client.send)
			}
		case sub := <-h.subscribe:
			if _, ok := h.subs[sub.ticker]; !ok {
				h.subs[sub.ticker] = make(map[*Client]bool)
				subCtx, cancel := context.WithCancel(ctx)
				h.redisCancels[sub.ticker] = cancel
				go h.pumpRedis(subCtx, sub.ticker)
			}
			h.subs[sub.ticker][sub.client] = true
		case sub := <-h.unsubscribe:
			if clients, ok := h.subs[sub.ticker]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					if cancel, ok := h.redisCancels[sub.ticker]; ok {
						cancel()
						delete(h.redisCancels, sub.ticker)
					}
					delete(h.subs, sub.ticker)
				}
			}
		}
	}
}

func (h *Hub) pumpRedis(ctx context.Context, ticker string) {
	pubsub := h.priceRepo.Subscribe(ctx, ticker)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(json.RawMessage(msg.Payload))
			if err != nil {
				continue
			}
			h.fanOut(ticker, data)
		}
	}
}

func (h *Hub) fanOut(ticker string, data []byte) {
	clients, ok := h.subs[ticker]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- data:
		default:
		}
	}
}
