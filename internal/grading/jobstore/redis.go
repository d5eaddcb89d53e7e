package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"essaygrade/internal/grading/model"
	appErr "essaygrade/pkg/errors"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "essaygrade:job:"
	jobIndexKey  = "essaygrade:jobs"

	maxSaveRetries = 10
)

// RedisConfig holds the connection settings for the redis job store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	// TTL expires job snapshots; zero keeps them forever.
	TTL time.Duration `yaml:"ttl"`
}

// RedisStore shares tracked jobs between CLI sessions and machines.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr cannot be empty")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

// Save writes the snapshot unless the stored one is already terminal. The terminal check and
// the write run under WATCH, so a concurrent writer cannot slip in between them.
func (s *RedisStore) Save(ctx context.Context, job model.BatchJob) error {
	if job.ID == "" {
		return appErr.ValidationError("upload_id", "required")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job failed: %w", err)
	}
	key := jobKeyPrefix + job.ID
	save := func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored model.BatchJob
			if err := json.Unmarshal(prev, &stored); err == nil && stored.Status.Terminal() {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.SAdd(ctx, jobIndexKey, job.ID)
			return nil
		})
		return err
	}
	for i := 0; i < maxSaveRetries; i++ {
		err = s.client.Watch(ctx, save, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store job failed")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, uploadID string) (model.BatchJob, error) {
	if uploadID == "" {
		return model.BatchJob{}, appErr.ValidationError("upload_id", "required")
	}
	val, err := s.client.Get(ctx, jobKeyPrefix+uploadID).Result()
	if errors.Is(err, redis.Nil) {
		return model.BatchJob{}, appErr.NotFoundError("batch job " + uploadID)
	}
	if err != nil {
		return model.BatchJob{}, appErr.Wrapf(err, appErr.CacheError, "load job failed")
	}
	var job model.BatchJob
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return model.BatchJob{}, appErr.Wrapf(err, appErr.CacheError, "decode job failed")
	}
	return job, nil
}

func (s *RedisStore) List(ctx context.Context) ([]model.BatchJob, error) {
	ids, err := s.client.SMembers(ctx, jobIndexKey).Result()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "list jobs failed")
	}
	out := make([]model.BatchJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if appErr.Is(err, appErr.NotFound) {
			// expired snapshot, drop it from the index
			_ = s.client.SRem(ctx, jobIndexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	sortJobs(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, uploadID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, jobKeyPrefix+uploadID)
	pipe.SRem(ctx, jobIndexKey, uploadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "delete job failed")
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
