package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/config"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

// saveScript writes a record only when its revision is newer than the one
// stored alongside it.
// KEYS[1] records hash, KEYS[2] revisions hash
// ARGV[1] quest type, ARGV[2] revision, ARGV[3] record JSON
var saveScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// RedisStore keeps each player's records in one hash keyed by quest type,
// with the revisions in a sibling hash read by the save script.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore connects using cfg and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "quest"
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (r *RedisStore) recordsKey(playerID string) string {
	return fmt.Sprintf("%s:records:%s", r.prefix, playerID)
}

func (r *RedisStore) revisionsKey(playerID string) string {
	return fmt.Sprintf("%s:revisions:%s", r.prefix, playerID)
}

func (r *RedisStore) Load(ctx context.Context, playerID, questType string) (quest.Record, bool, error) {
	data, err := r.client.HGet(ctx, r.recordsKey(playerID), questType).Result()
	if err == redis.Nil {
		return quest.Record{}, false, nil
	}
	if err != nil {
		return quest.Record{}, false, fmt.Errorf("redis hget failed: %w", err)
	}

	var rec quest.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return quest.Record{}, false, fmt.Errorf("decode %s/%s: %w", playerID, questType, err)
	}
	return rec, true, nil
}

func (r *RedisStore) LoadAll(ctx context.Context, playerID string) ([]quest.Record, error) {
	all, err := r.client.HGetAll(ctx, r.recordsKey(playerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	out := make([]quest.Record, 0, len(all))
	for questType, data := range all {
		var rec quest.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			r.logger.Warn("Skipping undecodable quest record",
				"player", playerID, "quest", questType, "error", err)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestType < out[j].QuestType })
	return out, nil
}

func (r *RedisStore) Save(ctx context.Context, rec quest.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", rec.PlayerID, rec.QuestType, err)
	}

	keys := []string{r.recordsKey(rec.PlayerID), r.revisionsKey(rec.PlayerID)}
	written, err := saveScript.Run(ctx, r.client, keys,
		rec.QuestType, strconv.FormatUint(rec.Revision, 10), string(data)).Int()
	if err != nil {
		return fmt.Errorf("redis save failed: %w", err)
	}
	if written == 0 {
		return ErrStaleRevision
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, playerID, questType string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.recordsKey(playerID), questType)
		pipe.HDel(ctx, r.revisionsKey(playerID), questType)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
