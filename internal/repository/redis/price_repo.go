package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yourorg/advisor-trader/internal/domain"
)

// lastPriceTTL bounds how stale a cached tick may be before the oracle
// reports the ticker as unpriceable.
const lastPriceTTL = 60 * time.Second

// PriceRepo caches the latest tick per ticker and fans ticks out over
// pub/sub. It is the backing store of the price oracle: trades execute
// against the last cached tick, never a default price.
type PriceRepo struct {
	client *redis.Client
}

func NewPriceRepo(client *redis.Client) *PriceRepo {
	return &PriceRepo{client: client}
}

func (r *PriceRepo) Publish(ctx context.Context, tick domain.PriceTick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Publish(ctx, "prices."+tick.Ticker, data)
	pipe.Set(ctx, "last_price:"+tick.Ticker, data, lastPriceTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *PriceRepo) GetLastTick(ctx context.Context, ticker string) (*domain.PriceTick, error) {
	val, err := r.client.Get(ctx, "last_price:"+ticker).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get last price: %w", err)
	}
	var tick domain.PriceTick
	if err := json.Unmarshal([]byte(val), &tick); err != nil {
		return nil, err
	}
	return &tick, nil
}

// GetPrice implements domain.PriceOracle. An absent or non-positive
// cached price is reported uniformly as ErrPriceUnavailable.
func (r *PriceRepo) GetPrice(ctx context.Context, ticker string) (float64, error) {
	tick, err := r.GetLastTick(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if tick == nil || tick.Price <= 0 {
		return 0, fmt.Errorf("%s: %w", ticker, domain.ErrPriceUnavailable)
	}
	return tick.Price, nil
}

func (r *PriceRepo) Subscribe(ctx context.Context, ticker string) *redis.PubSub {
	return r.client.Subscribe(ctx, "prices."+ticker)
}
