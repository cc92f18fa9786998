package claims

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS claims (
    -- 請求の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 請求者の氏名
    claimant_name TEXT NOT NULL,
    -- 請求者の連絡先メールアドレス
    email TEXT NOT NULL,
    -- 請求先の保険会社ID
    company_id TEXT NOT NULL,
    -- 請求の状態（received / reviewing / settled）
    status TEXT NOT NULL DEFAULT 'received',
    -- 添付書類のファイル名一覧（JSON配列）
    file_names TEXT NOT NULL DEFAULT '[]',
    -- 請求の作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

-- 保険会社IDでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_claims_company_id
    ON claims(company_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
