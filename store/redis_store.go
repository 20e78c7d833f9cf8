package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"EchoFM/config"

	"github.com/go-redis/redis/v8"
)

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisStore 把一个存储映射为一个 Redis 哈希表。
// 哈希表的单字段操作在服务端是原子的，天然满足写互斥要求。
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore 创建名为 name 的 Redis 存储。
func NewRedisStore(client *redis.Client, name string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    "echofm:" + name,
	}
}

// Get 读取并解码一个字段。
func (s *RedisStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.client.HGet(ctx, s.key, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get Redis field: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("解码存储值失败 (key: %s): %w", key, err)
	}
	return true, nil
}

// Put 写入或覆盖一个字段。
func (s *RedisStore) Put(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("编码存储值失败 (key: %s): %w", key, err)
	}
	if err := s.client.HSet(ctx, s.key, key, raw).Err(); err != nil {
		return fmt.Errorf("failed to set Redis field: %w", err)
	}
	return nil
}

// Delete 删除一个字段。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.key, key).Err(); err != nil {
		return fmt.Errorf("failed to delete Redis field: %w", err)
	}
	return nil
}

// All 返回哈希表中的全部字段。
func (s *RedisStore) All(ctx context.Context) (map[string]json.RawMessage, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read Redis hash: %w", err)
	}
	doc := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		doc[k] = json.RawMessage(v)
	}
	return doc, nil
}
