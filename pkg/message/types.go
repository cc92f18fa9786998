package message

import (
	"encoding/json"
	"time"
)

// Type はメッセージの種類を表す。
type Type string

const (
	// TypeZipExportRequested は書類のZIPエクスポートが要求されたことを表す。
	TypeZipExportRequested Type = "ZipExportRequested"
	// TypeReceiptEmailRequested は受領メールの送信が要求されたことを表す。
	TypeReceiptEmailRequested Type = "ReceiptEmailRequested"
	// TypeMonthlyReportRequested は月次レポートの作成が要求されたことを表す。
	TypeMonthlyReportRequested Type = "MonthlyReportRequested"
)

// Envelope はキューを流れる型付きメッセージの封筒。
// 生成後は不変であり、ディスパッチ後に破棄される。
type Envelope struct {
	// ID はメッセージの一意識別子（UUID）。相関IDとしてログに使用する。
	ID string `json:"id"`
	// Type はメッセージの種類。ルーターがハンドラを引き当てるためのタグ。
	Type Type `json:"type"`
	// Payload はメッセージ固有のデータ（JSON形式）。
	Payload json.RawMessage `json:"payload"`
	// EnqueuedAt はメッセージが生成された日時。
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ZipExportRequestedData はZipExportRequestedメッセージのデータ。
type ZipExportRequestedData struct {
	// ClaimID は対象となる保険請求のID。
	ClaimID string `json:"claim_id"`
	// RequestedBy はエクスポートを要求したユーザーのID。
	RequestedBy string `json:"requested_by"`
	// FileNames はZIPに含める書類ファイル名の一覧。
	FileNames []string `json:"file_names"`
	// RequestedAt はエクスポート要求の日時。冪等キーの一部に使用する。
	RequestedAt time.Time `json:"requested_at"`
}

// ReceiptEmailRequestedData はReceiptEmailRequestedメッセージのデータ。
type ReceiptEmailRequestedData struct {
	// ClaimID は対象となる保険請求のID。
	ClaimID string `json:"claim_id"`
	// Email は受領メールの宛先アドレス。
	Email string `json:"email"`
	// ClaimantName は請求者の氏名。メール本文に使用する。
	ClaimantName string `json:"claimant_name"`
}

// MonthlyReportRequestedData はMonthlyReportRequestedメッセージのデータ。
type MonthlyReportRequestedData struct {
	// CompanyID は対象となる保険会社のID。
	CompanyID string `json:"company_id"`
	// Year はレポート対象の年。
	Year int `json:"year"`
	// Month はレポート対象の月（1-12）。
	Month int `json:"month"`
}
