// Package orders は注文サービスの内部実装を提供する。
//
// 注文の作成・一覧・詳細・ステータス遷移・キャンセル・統計を担当する。
// 注文作成時はbooksサービスに在庫を問い合わせ、確保できた場合のみ
// 注文を確定する。
package orders
