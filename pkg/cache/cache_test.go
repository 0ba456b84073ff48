package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestCacheDisabled はRedisクライアントが無い場合の縮退動作を検証する。
func TestCacheDisabled(t *testing.T) {
	t.Parallel()

	c := New(nil)
	ctx := context.Background()

	t.Run("GetJSONは常にミスを返すこと", func(t *testing.T) {
		t.Parallel()

		var dest map[string]string
		if c.GetJSON(ctx, "book:1", &dest) {
			t.Error("無効キャッシュでヒットが返された")
		}
	})

	t.Run("SetJSONとDeleteがパニックしないこと", func(t *testing.T) {
		t.Parallel()

		c.SetJSON(ctx, "book:1", map[string]string{"title": "Go"}, time.Minute)
		c.Delete(ctx, "book:1", "books:list:1")
	})

	t.Run("Closeがエラーを返さないこと", func(t *testing.T) {
		t.Parallel()

		if err := c.Close(); err != nil {
			t.Errorf("Close()でエラーが発生: %v", err)
		}
	})
}

// TestCacheUnreachableRedis はRedisに接続できない場合の縮退動作を検証する。
// キャッシュ障害はリクエストを失敗させず、ミスとして扱われる。
func TestCacheUnreachableRedis(t *testing.T) {
	t.Parallel()

	// 接続先が存在しないクライアント
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	})
	c := New(client)
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var dest map[string]string
	if c.GetJSON(ctx, "book:1", &dest) {
		t.Error("到達不能なRedisでヒットが返された")
	}

	// エラーが呼び出し元に伝播しないことの確認
	c.SetJSON(ctx, "book:1", map[string]string{"title": "Go"}, time.Minute)
	c.Delete(ctx, "book:1")
}

// TestNewFromURL は接続URLからの生成を検証する。
func TestNewFromURL(t *testing.T) {
	t.Parallel()

	t.Run("空URLは無効キャッシュを返すこと", func(t *testing.T) {
		t.Parallel()

		c, err := NewFromURL("")
		if err != nil {
			t.Fatalf("NewFromURL()でエラーが発生: %v", err)
		}

		var dest any
		if c.GetJSON(context.Background(), "key", &dest) {
			t.Error("無効キャッシュでヒットが返された")
		}
	})

	t.Run("不正なURLはエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		if _, err := NewFromURL("://broken"); err == nil {
			t.Error("エラーが返されるべき")
		}
	})

	t.Run("正しいURLはキャッシュを生成できること", func(t *testing.T) {
		t.Parallel()

		if _, err := NewFromURL("redis://localhost:6379/0"); err != nil {
			t.Errorf("NewFromURL()でエラーが発生: %v", err)
		}
	})
}
