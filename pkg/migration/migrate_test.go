package migration

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

// setupTestDB はテスト用のインメモリSQLiteを作成する。
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRun はマイグレーションの適用を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("ファイルがバージョン順に適用されること", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		fsys := fstest.MapFS{
			"migrations/000002_add_column.up.sql": &fstest.MapFile{
				Data: []byte("ALTER TABLE items ADD COLUMN name TEXT NOT NULL DEFAULT '';"),
			},
			"migrations/000001_create_items.up.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);"),
			},
			"migrations/notes.txt": &fstest.MapFile{Data: []byte("ignored")},
		}

		if err := Run(db, fsys, "migrations"); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}

		// 2番目のマイグレーションで追加された列が使えること
		if _, err := db.Exec("INSERT INTO items (id, name) VALUES (1, 'a')"); err != nil {
			t.Errorf("マイグレーション後のテーブルが不正: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("バージョン記録の取得に失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("適用バージョン数 = %d, want 2", count)
		}
	})

	t.Run("適用済みのマイグレーションはスキップされること", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		fsys := fstest.MapFS{
			"migrations/000001_create_items.up.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);"),
			},
		}

		if err := Run(db, fsys, "migrations"); err != nil {
			t.Fatalf("1回目のRun()でエラーが発生: %v", err)
		}
		// CREATE TABLEが再実行されればエラーになる
		if err := Run(db, fsys, "migrations"); err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}
	})

	t.Run("SQLが不正な場合はエラーになり記録されないこと", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		fsys := fstest.MapFS{
			"migrations/000001_broken.up.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE;"),
			},
		}

		if err := Run(db, fsys, "migrations"); err == nil {
			t.Fatal("エラーが返るべき")
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("バージョン記録の取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("失敗したマイグレーションが記録されている: %d", count)
		}
	})
}
