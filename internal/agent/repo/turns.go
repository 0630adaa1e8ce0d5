package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gisa-chat/server/internal/agent/model"
	errx "github.com/gisa-chat/server/internal/core/error"
	logx "github.com/gisa-chat/server/pkg/logger"
)

type RedisTurnRepository struct {
	rdb      redis.Cmdable
	ttl      time.Duration
	maxTurns int
}

// NewRedisTurnRepository keeps at most maxTurns records per sender; 0 keeps all.
func NewRedisTurnRepository(rdb redis.Cmdable, ttl time.Duration, maxTurns int) *RedisTurnRepository {
	return &RedisTurnRepository{rdb: rdb, ttl: ttl, maxTurns: maxTurns}
}

func (r *RedisTurnRepository) turnsKey(sender string) string {
	return fmt.Sprintf("chat:%s:turns", sender)
}

func (r *RedisTurnRepository) pendingKey(sender string) string {
	return fmt.Sprintf("chat:%s:pending_details", sender)
}

func (r *RedisTurnRepository) AppendTurn(ctx context.Context, sender string, record model.TurnRecord) error {
	b, err := json.Marshal(record)
	if err != nil {
		logx.Error().Err(err).Str("sender", sender).Msg("failed to marshal turn")
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := r.turnsKey(sender)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push turn to redis")
		return errx.WrapRedis(err)
	}
	if r.maxTurns > 0 {
		if err := r.rdb.LTrim(ctx, key, int64(-r.maxTurns), -1).Err(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to trim turn log")
			return errx.WrapRedis(err)
		}
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on turn log")
		}
	}
	return nil
}

func (r *RedisTurnRepository) RecentTurns(ctx context.Context, sender string, limit int) ([]model.TurnRecord, error) {
	key := r.turnsKey(sender)
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	rows, err := r.rdb.LRange(ctx, key, start, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.TurnRecord{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load turns from redis")
		return nil, errx.WrapRedis(err)
	}

	out := make([]model.TurnRecord, 0, len(rows))
	for i, s := range rows {
		var rec model.TurnRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			logx.Error().Err(err).Str("sender", sender).Int("index", i).Msg("failed to unmarshal turn")
			return nil, fmt.Errorf("unmarshal turn at index %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SavePendingDetails replaces what was pending; empty details clear it.
func (r *RedisTurnRepository) SavePendingDetails(ctx context.Context, sender string, details string) error {
	key := r.pendingKey(sender)
	if details == "" {
		if err := r.rdb.Del(ctx, key).Err(); err != nil {
			return errx.WrapRedis(err)
		}
		return nil
	}
	if err := r.rdb.Set(ctx, key, details, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save pending details")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisTurnRepository) TakePendingDetails(ctx context.Context, sender string) (string, error) {
	key := r.pendingKey(sender)
	s, err := r.rdb.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to take pending details")
		return "", errx.WrapRedis(err)
	}
	return s, nil
}

func (r *RedisTurnRepository) ClearHistory(ctx context.Context, sender string) error {
	if err := r.rdb.Del(ctx, r.turnsKey(sender), r.pendingKey(sender)).Err(); err != nil {
		logx.Error().Err(err).Str("sender", sender).Msg("failed to clear history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.TurnRepository = (*RedisTurnRepository)(nil)
