package reviews

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。db/reviews/schema.sql と同期すること。
const schema = `
CREATE TABLE IF NOT EXISTS reviews (
    -- レビューの一意識別子
    id TEXT PRIMARY KEY,
    -- レビュー対象の書籍ID
    book_id TEXT NOT NULL,
    -- レビューしたユーザーのID
    user_id TEXT NOT NULL,
    -- 評価。1〜5の整数
    rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
    -- レビュー本文
    comment TEXT NOT NULL DEFAULT '',
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 1ユーザーにつき1書籍1レビュー
    UNIQUE (book_id, user_id)
);

-- 書籍単位のレビュー取得を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_reviews_book_id
    ON reviews(book_id);

-- ユーザー単位のレビュー取得を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_reviews_user_id
    ON reviews(user_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
