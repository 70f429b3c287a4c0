// Package notify publishes settled deposits to downstream consumers (wallet
// crediting, player messaging). Delivery is best effort: callers log failures
// and never roll back a settlement because a notification was lost.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-deposit-backend/internal/config"
	"github.com/tbourn/go-deposit-backend/internal/domain"
)

// Notifier receives deposits that reached a terminal status.
type Notifier interface {
	DepositSettled(ctx context.Context, s domain.Settlement) error
}

// Publisher is the subset of *redis.Client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Message is the JSON document published per settlement.
type Message struct {
	EventType string `json:"event_type"` // deposit.completed | deposit.failed | deposit.cancelled
	domain.Settlement
}

// Redis publishes settlements on a pub/sub channel.
type Redis struct {
	pub     Publisher
	channel string
}

// NewRedis wraps a publisher; channel defaults to "deposits.settled".
func NewRedis(pub Publisher, channel string) *Redis {
	if channel == "" {
		channel = "deposits.settled"
	}
	return &Redis{pub: pub, channel: channel}
}

func (r *Redis) DepositSettled(ctx context.Context, s domain.Settlement) error {
	payload, err := json.Marshal(Message{EventType: "deposit." + string(s.Status), Settlement: s})
	if err != nil {
		return fmt.Errorf("notify: marshal settlement: %w", err)
	}
	receivers, err := r.pub.Publish(ctx, r.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("notify: publish %s: %w", r.channel, err)
	}
	log.Ctx(ctx).Debug().
		Str("deposit_id", s.DepositID).
		Str("channel", r.channel).
		Int64("receivers", receivers).
		Msg("settlement published")
	return nil
}

// Log writes settlements to the application log. It is used when no broker
// is configured.
type Log struct{}

func (Log) DepositSettled(_ context.Context, s domain.Settlement) error {
	log.Info().
		Str("deposit_id", s.DepositID).
		Str("provider", s.Provider).
		Str("provider_ref", s.ProviderRef).
		Str("status", string(s.Status)).
		Str("amount", s.Amount.String()).
		Str("currency", s.Currency).
		Time("settled_at", s.SettledAt).
		Msg("deposit settled")
	return nil
}

// FromConfig returns a Redis notifier when NOTIFY_REDIS_ADDR is set and the
// log notifier otherwise. The returned close func releases the client.
func FromConfig(cfg config.NotifyConfig) (Notifier, func() error) {
	if cfg.RedisAddr == "" {
		return Log{}, func() error { return nil }
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedis(rdb, cfg.Channel), rdb.Close
}
