// レビューサービスのエントリポイント。
// 書籍レビューの投稿・更新・削除と評価サマリーの提供を担当する。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/nao1215/bookshelf/internal/reviews"
)

func main() {
	// .envが無い環境では環境変数をそのまま使う
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8004"
	}

	server, err := reviews.NewServer(port)
	if err != nil {
		log.Fatalf("レビューサーバーの初期化に失敗: %v", err)
	}

	log.Printf("レビューサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("レビューサービスの起動に失敗: %v", err)
	}
}
