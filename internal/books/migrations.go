package books

import (
	"database/sql"
	"embed"

	"github.com/nao1215/bookshelf/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// initSchema はマイグレーションを適用してスキーマを最新化する。
func initSchema(db *sql.DB) error {
	return migration.Run(db, migrationsFS, "migrations")
}
