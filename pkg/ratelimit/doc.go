// Package ratelimit は固定ウィンドウ方式のレートリミッタを提供する。
//
// リクエスト元のアイデンティティ（認証済みユーザーIDまたはクライアントIP）
// ごとにカウンタを管理し、ウィンドウ内のリクエスト数が上限を超えた場合に
// 拒否を判定する。カウンタはRedisまたはインメモリストアに保存される。
// ストア障害時はフェイルオープン（リクエストを許可）する。
package ratelimit
