// Package pubsub はサービス間のドメインイベント配信を提供する。
//
// 各サービスは書籍の作成や注文の完了といったドメインイベントを
// ファイアアンドフォーゲットで発行する。発行失敗はログに残すのみで、
// 呼び出し元のリクエスト処理を失敗させない。
//
// PUBSUB_MODE環境変数で配信先を切り替える:
//
//	"stub"  (デフォルト): イベントをログに出力するのみ。
//	"redis": Redis Pub/Subチャネルに発行する。
package pubsub
