package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

// redisStore keeps the id order in a list (<key>:ids) and the records in a
// hash (<key>:data). Save rewrites both inside MULTI/EXEC.
type redisStore struct {
	rdb  *redis.Client
	log  logx.Logger
	ids  string
	data string
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for redis driver")
	}
	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis dsn: %w", err)
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = "promptcron:schedules"
	}
	log.Info("storage opened", logx.String("key", key))
	return newRedisStore(rdb, key, log), nil
}

func newRedisStore(rdb *redis.Client, key string, log logx.Logger) *redisStore {
	return &redisStore{rdb: rdb, log: log, ids: key + ":ids", data: key + ":data"}
}

func (s *redisStore) Load(ctx context.Context) ([]schedule.Schedule, error) {
	ids, err := s.rdb.LRange(ctx, s.ids, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := s.rdb.HMGet(ctx, s.data, ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]schedule.Schedule, 0, len(ids))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			s.log.Warn("schedule id without record", logx.String("id", ids[i]))
			continue
		}
		var sc schedule.Schedule
		if err := json.Unmarshal([]byte(raw), &sc); err != nil {
			return nil, fmt.Errorf("decode schedule %s: %w", ids[i], err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *redisStore) Save(ctx context.Context, all []schedule.Schedule) error {
	ids := make([]any, 0, len(all))
	fields := make([]any, 0, 2*len(all))
	for _, sc := range all {
		b, err := json.Marshal(persisted(sc))
		if err != nil {
			return err
		}
		ids = append(ids, sc.ID)
		fields = append(fields, sc.ID, string(b))
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.ids, s.data)
		if len(ids) > 0 {
			p.RPush(ctx, s.ids, ids...)
			p.HSet(ctx, s.data, fields...)
		}
		return nil
	})
	return err
}

func (s *redisStore) Exists(ctx context.Context, id string) (bool, error) {
	return s.rdb.HExists(ctx, s.data, id).Result()
}

func (s *redisStore) Close() error { return s.rdb.Close() }
