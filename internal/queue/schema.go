package queue

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS queue_messages (
    -- メッセージの一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- メッセージの種類（ルーティングタグ）
    msg_type TEXT NOT NULL,
    -- メッセージ固有のデータ（JSON形式）
    payload TEXT NOT NULL,
    -- 処理状態（enqueued / running / succeeded / failed / unroutable）
    status TEXT NOT NULL DEFAULT 'enqueued',
    -- これまでの試行回数
    attempts INTEGER NOT NULL DEFAULT 0,
    -- 次に試行してよい日時（固定幅の日時文字列、UTC）
    next_attempt_at TEXT NOT NULL,
    -- 直近の失敗理由
    last_error TEXT NOT NULL DEFAULT '',
    -- メッセージが生成された日時（固定幅の日時文字列、UTC）
    enqueued_at TEXT NOT NULL,
    -- 最終更新日時（固定幅の日時文字列、UTC）
    updated_at TEXT NOT NULL
);

-- リース対象の検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_queue_messages_lease
    ON queue_messages(status, next_attempt_at) WHERE status = 'enqueued';

-- 期限切れリースの回収を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_queue_messages_reclaim
    ON queue_messages(status, updated_at) WHERE status = 'running';
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
