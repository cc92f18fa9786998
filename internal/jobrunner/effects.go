package jobrunner

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// effectsSchema は副作用の冪等性記録テーブルのスキーマ定義。
const effectsSchema = `
CREATE TABLE IF NOT EXISTS job_effects (
    -- 副作用の冪等キー（例: "zip-export:claim-1:29512345"）
    idempotency_key TEXT PRIMARY KEY,
    -- 副作用が完了した日時（RFC3339Nano、UTC）
    completed_at TEXT NOT NULL
);
`

// EffectRecorder はジョブの外部副作用が適用済みかどうかを記録する。
// リトライによって同じメッセージが再実行されても、
// エクスポートファイルの書き出しやメール送信を二重に適用しないために使用する。
type EffectRecorder struct {
	// db はSQLiteデータベース接続。キューと同じファイルを共有する。
	db *sql.DB
}

// NewEffectRecorder は新しいEffectRecorderを生成し、スキーマを適用する。
func NewEffectRecorder(db *sql.DB) (*EffectRecorder, error) {
	if _, err := db.Exec(effectsSchema); err != nil {
		return nil, fmt.Errorf("冪等性記録テーブルの作成に失敗: %w", err)
	}
	return &EffectRecorder{db: db}, nil
}

// Done は指定した冪等キーの副作用が適用済みかどうかを返す。
func (r *EffectRecorder) Done(ctx context.Context, key string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_effects WHERE idempotency_key = ?`, key,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("冪等性記録の確認に失敗: %w", err)
	}
	return count > 0, nil
}

// Record は副作用の完了を記録する。既に記録済みの場合は何もしない。
func (r *EffectRecorder) Record(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO job_effects (idempotency_key, completed_at) VALUES (?, ?)`,
		key, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("冪等性記録の保存に失敗: %w", err)
	}
	return nil
}
