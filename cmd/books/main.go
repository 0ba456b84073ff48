// 書籍サービスのエントリポイント。
// 書籍カタログのCRUD、検索・絞り込み、在庫管理を担当する。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/nao1215/bookshelf/internal/books"
)

func main() {
	// .envが無い環境では環境変数をそのまま使う
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8002"
	}

	server, err := books.NewServer(port)
	if err != nil {
		log.Fatalf("書籍サーバーの初期化に失敗: %v", err)
	}

	log.Printf("書籍サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("書籍サービスの起動に失敗: %v", err)
	}
}
