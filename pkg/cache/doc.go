// Package cache はRedisをバックエンドとするベストエフォートのJSONキャッシュを提供する。
//
// books・orders・reviewsサービスがレスポンスの再計算を避けるために使用する。
// Redis障害時はすべての操作がキャッシュミスとして扱われ、
// リクエスト処理を失敗させることはない。
package cache
