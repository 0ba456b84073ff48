package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache はRedisをバックエンドとするJSONキャッシュ。
// すべての操作はベストエフォートであり、Redis障害は
// キャッシュミスに縮退する（リクエストを失敗させない）。
type Cache struct {
	// client はRedisクライアント。nilの場合すべての操作はミスになる。
	client *redis.Client
}

// New はRedisクライアントからキャッシュを生成する。
// clientがnilの場合、常にキャッシュミスとして振る舞う無効キャッシュとなる。
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// NewFromURL は接続URL（例: "redis://localhost:6379/0"）からキャッシュを生成する。
// urlが空の場合は無効キャッシュを返す。
func NewFromURL(url string) (*Cache, error) {
	if url == "" {
		return &Cache{}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("Redis URLの解析に失敗: %w", err)
	}
	return &Cache{client: redis.NewClient(opts)}, nil
}

// GetJSON はキーに対応する値を取得しdestにデシリアライズする。
// ヒットした場合はtrueを返す。Redis障害・デシリアライズ失敗はミス扱い。
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	if c.client == nil {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("キャッシュ取得に失敗（ミス扱い）: key=%s, error=%v", key, err)
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		log.Printf("キャッシュ値のデシリアライズに失敗（ミス扱い）: key=%s, error=%v", key, err)
		return false
	}
	return true
}

// SetJSON は値をJSONにシリアライズしてTTL付きで保存する。
// 失敗してもエラーは返さずログに残すのみ。
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if c.client == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("キャッシュ値のシリアライズに失敗: key=%s, error=%v", key, err)
		return
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("キャッシュ保存に失敗: key=%s, error=%v", key, err)
	}
}

// Delete は指定されたキーを削除する。失敗はログに残すのみ。
// 変更系操作後のベストエフォートなキャッシュ無効化に使用する。
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c.client == nil || len(keys) == 0 {
		return
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("キャッシュ削除に失敗: keys=%v, error=%v", keys, err)
	}
}

// DeletePattern はパターンに一致するキーをすべて削除する。失敗はログに残すのみ。
// 一覧キャッシュのようにキーを列挙できない場合の無効化に使用する。
func (c *Cache) DeletePattern(ctx context.Context, pattern string) {
	if c.client == nil {
		return
	}

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("キャッシュキーの走査に失敗: pattern=%s, error=%v", pattern, err)
		return
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			log.Printf("キャッシュ削除に失敗: pattern=%s, error=%v", pattern, err)
		}
	}
}

// Close はRedis接続を閉じる。
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
