package notification

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/claimshub/claimshub/pkg/migration"
)

// マイグレーションファイル。db/notification/schema.sql と同期すること。
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// initSchema はSQLiteデータベースにマイグレーションを適用する。
func initSchema(db *sql.DB) error {
	if err := migration.Run(db, migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
