package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Publisher はドメインイベントの発行先を表す。
type Publisher interface {
	// Publish はペイロードをJSON形式でトピックに発行する。
	Publish(ctx context.Context, topic Topic, payload any) error
}

// StubPublisher はイベントをログに出力するだけの発行先。
// 開発環境およびテストで使用する。
type StubPublisher struct{}

var _ Publisher = (*StubPublisher)(nil)

// Publish はイベントをログに出力する。
func (p *StubPublisher) Publish(_ context.Context, topic Topic, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("イベントペイロードのシリアライズに失敗: %w", err)
	}
	log.Printf("[PUBSUB-STUB] publish -> topic=%s payload=%s", topic, data)
	return nil
}

// RedisPublisher はRedis Pub/Subチャネルへイベントを発行する。
type RedisPublisher struct {
	// client はRedisクライアント。
	client *redis.Client
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher はRedis Pub/Sub発行先を生成する。
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish はペイロードをJSON形式でRedisチャネルに発行する。
func (p *RedisPublisher) Publish(ctx context.Context, topic Topic, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("イベントペイロードのシリアライズに失敗: %w", err)
	}
	if err := p.client.Publish(ctx, string(topic), data).Err(); err != nil {
		return fmt.Errorf("イベント発行に失敗: topic=%s: %w", topic, err)
	}
	return nil
}

// NewFromEnv はPUBSUB_MODEとRedis URLから発行先を生成する。
// mode="redis"かつurlが有効な場合のみRedis発行先を返し、
// それ以外はスタブ発行先を返す。
func NewFromEnv(mode, url string) (Publisher, error) {
	if mode != "redis" {
		return &StubPublisher{}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("Redis URLの解析に失敗: %w", err)
	}
	return NewRedisPublisher(redis.NewClient(opts)), nil
}

// Emit はイベントを発行し、失敗をログに残す。
// 発行失敗でリクエスト処理を失敗させないためのヘルパー。
func Emit(ctx context.Context, p Publisher, topic Topic, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, topic, payload); err != nil {
		log.Printf("イベント発行エラー（処理は継続）: topic=%s, error=%v", topic, err)
	}
}
