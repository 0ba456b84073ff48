// 注文サービスのエントリポイント。
// 注文の作成・照会・状態遷移と、書籍サービスと連携した在庫引き当てを担当する。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/nao1215/bookshelf/internal/orders"
)

func main() {
	// .envが無い環境では環境変数をそのまま使う
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8003"
	}

	server, err := orders.NewServer(port)
	if err != nil {
		log.Fatalf("注文サーバーの初期化に失敗: %v", err)
	}

	log.Printf("注文サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("注文サービスの起動に失敗: %v", err)
	}
}
