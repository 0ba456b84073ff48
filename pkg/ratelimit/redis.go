package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore はRedisをバックエンドとするカウンタストア。
// INCRのアトミック性により、同一アイデンティティからの同時リクエストでも
// カウントの取りこぼしが発生しない。
type RedisStore struct {
	// client はRedisクライアント。
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore はRedisカウンタストアを生成する。
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromURL は接続URL（例: "redis://localhost:6379/0"）から
// Redisカウンタストアを生成する。
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("Redis URLの解析に失敗: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// Increment はカウンタをインクリメントし、インクリメント後の値を返す。
// ウィンドウ内で最初のインクリメント（結果が1）の場合のみ有効期限を設定する。
// 期限は最初のリクエスト時点から始まる固定ウィンドウとなる。
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Close はRedis接続を閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
