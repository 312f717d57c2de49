package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
)

const redisScanCount = 100

// RedisConfig holds connection settings for the Redis backend
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key written by the repository
	KeyPrefix string

	// StateTTL evicts idle session state. Zero keeps state forever.
	StateTTL time.Duration
}

// Redis implements Repository on Redis. State and analytics are stored as JSON
// strings; state keys expire after StateTTL of inactivity.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	stateTTL  time.Duration
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", cfg.Addr))
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "concierge:"
	}

	return &Redis{
		client:    client,
		keyPrefix: prefix,
		stateTTL:  cfg.StateTTL,
	}, nil
}

func (r *Redis) stateKey(id model.StateID) string {
	return r.keyPrefix + "state:" + string(id)
}

func (r *Redis) analyticsKey(id model.SessionID) string {
	return r.keyPrefix + "analytics:" + string(id)
}

func (r *Redis) LoadState(ctx context.Context, id model.StateID) (*model.AgentState, error) {
	data, err := r.client.Get(ctx, r.stateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, goerr.Wrap(ErrNotFound, "state not found", goerr.V("state_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get state", goerr.V("state_id", id))
	}

	var state model.AgentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, goerr.Wrap(err, "failed to decode state", goerr.V("state_id", id))
	}
	return &state, nil
}

func (r *Redis) SaveState(ctx context.Context, id model.StateID, state *model.AgentState) error {
	if state == nil {
		return goerr.New("state is nil", goerr.V("state_id", id))
	}

	data, err := json.Marshal(state)
	if err != nil {
		return goerr.Wrap(err, "failed to encode state", goerr.V("state_id", id))
	}

	if err := r.client.Set(ctx, r.stateKey(id), data, r.stateTTL).Err(); err != nil {
		return goerr.Wrap(err, "failed to save state", goerr.V("state_id", id))
	}
	return nil
}

func (r *Redis) GetAnalytics(ctx context.Context, id model.SessionID) (*model.ConversationAnalytics, error) {
	data, err := r.client.Get(ctx, r.analyticsKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, goerr.Wrap(ErrNotFound, "analytics not found", goerr.V("session_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get analytics", goerr.V("session_id", id))
	}

	var a model.ConversationAnalytics
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, goerr.Wrap(err, "failed to decode analytics", goerr.V("session_id", id))
	}
	return &a, nil
}

func (r *Redis) PutAnalytics(ctx context.Context, analytics *model.ConversationAnalytics) error {
	if analytics == nil || analytics.SessionID == "" {
		return goerr.New("analytics must have a session ID")
	}

	data, err := json.Marshal(analytics)
	if err != nil {
		return goerr.Wrap(err, "failed to encode analytics", goerr.V("session_id", analytics.SessionID))
	}

	if err := r.client.Set(ctx, r.analyticsKey(analytics.SessionID), data, 0).Err(); err != nil {
		return goerr.Wrap(err, "failed to put analytics", goerr.V("session_id", analytics.SessionID))
	}
	return nil
}

// ListAnalytics scans every analytics key. Redis has no secondary index here,
// so ordering and paging happen client side.
func (r *Redis) ListAnalytics(ctx context.Context, offset, limit int) ([]*model.ConversationAnalytics, error) {
	offset, limit = normalizePage(offset, limit)

	var all []*model.ConversationAnalytics
	if err := r.ScanAnalytics(ctx, func(a *model.ConversationAnalytics) error {
		all = append(all, a)
		return nil
	}); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].LastUpdated.Equal(all[j].LastUpdated) {
			return all[i].SessionID < all[j].SessionID
		}
		return all[i].LastUpdated.After(all[j].LastUpdated)
	})

	if offset >= len(all) {
		return []*model.ConversationAnalytics{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

// ScanAnalytics walks the analytics keys with one SCAN cursor and fetches
// values with MGET per batch. SCAN may return a key twice; each key is visited
// once.
func (r *Redis) ScanAnalytics(ctx context.Context, fn func(*model.ConversationAnalytics) error) error {
	seen := map[string]struct{}{}
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.keyPrefix+"analytics:*", redisScanCount).Result()
		if err != nil {
			return goerr.Wrap(err, "failed to scan analytics keys", goerr.V("cursor", cursor))
		}

		batch := make([]string, 0, len(keys))
		for _, key := range keys {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			batch = append(batch, key)
		}

		if len(batch) > 0 {
			values, err := r.client.MGet(ctx, batch...).Result()
			if err != nil {
				return goerr.Wrap(err, "failed to get analytics values")
			}

			for i, v := range values {
				s, ok := v.(string)
				if !ok {
					// expired or deleted between SCAN and MGET
					continue
				}
				var a model.ConversationAnalytics
				if err := json.Unmarshal([]byte(s), &a); err != nil {
					return goerr.Wrap(err, "failed to decode analytics", goerr.V("key", batch[i]))
				}
				if err := fn(&a); err != nil {
					return err
				}
			}
		}

		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
