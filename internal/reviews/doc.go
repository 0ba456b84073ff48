// Package reviews はレビューサービスの内部実装を提供する。
//
// 書籍レビューの投稿・一覧・評価サマリー・更新・削除を担当する。
// 1ユーザーにつき1書籍1レビューの制約を持ち、書籍単位の参照は
// Redisにキャッシュする。
package reviews
