// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、パスプレフィックスに基づく
// リクエストルーティング、アイデンティティ単位のレート制限、
// 全バックエンドサービスのヘルスチェック集約を担当する。
// レスポンスは変換・キャッシュせず、バックエンドの内容をそのまま中継する。
package gateway
