package orders

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。db/orders/schema.sql と同期すること。
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    -- 注文の一意識別子
    id TEXT PRIMARY KEY,
    -- 注文したユーザーのID
    user_id TEXT NOT NULL,
    -- 注文ステータス。pending / processing / completed / cancelled
    status TEXT NOT NULL DEFAULT 'pending',
    -- 合計金額
    total_amount REAL NOT NULL,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS order_items (
    -- 注文ID
    order_id TEXT NOT NULL,
    -- 書籍ID
    book_id TEXT NOT NULL,
    -- 注文時点の書籍タイトル
    title TEXT NOT NULL,
    -- 注文時点の単価
    price REAL NOT NULL,
    -- 数量
    quantity INTEGER NOT NULL,
    PRIMARY KEY (order_id, book_id),
    FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
);

-- ユーザーIDでの注文検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_orders_user_id
    ON orders(user_id);

-- ステータス別集計を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_orders_status
    ON orders(status);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
