// Package books は書籍カタログサービスの内部実装を提供する。
//
// 書籍のCRUD・絞り込みとページング付きの一覧・在庫の増減・
// カテゴリ一覧を担当する。参照系はRedisにキャッシュし、
// 変更系操作でキャッシュを無効化する。
package books
