package auth

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。db/auth/schema.sql と同期すること。
const schema = `
CREATE TABLE IF NOT EXISTS users (
    -- ユーザーの一意識別子
    id TEXT PRIMARY KEY,
    -- メールアドレス。ログインIDとして使用する
    email TEXT NOT NULL UNIQUE,
    -- ユーザー名
    username TEXT NOT NULL UNIQUE,
    -- bcryptでハッシュ化されたパスワード
    hashed_password TEXT NOT NULL,
    -- 表示名
    full_name TEXT NOT NULL DEFAULT '',
    -- 管理者フラグ
    is_admin INTEGER NOT NULL DEFAULT 0,
    -- アカウント有効フラグ
    is_active INTEGER NOT NULL DEFAULT 1,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
    -- リフレッシュトークン本体
    token TEXT PRIMARY KEY,
    -- トークンの所有者
    user_id TEXT NOT NULL,
    -- 有効期限
    expires_at DATETIME NOT NULL,
    -- 失効フラグ。ログアウト時に立てる
    revoked INTEGER NOT NULL DEFAULT 0,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- メールアドレスでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_users_email
    ON users(email);

-- ユーザー単位でのトークン失効を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id
    ON refresh_tokens(user_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
