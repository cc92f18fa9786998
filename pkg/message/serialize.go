package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownType は登録されていないメッセージタイプを表すエラー。
// ベストエフォートで解析を続けるのではなく、設定エラーとして扱う。
var ErrUnknownType = errors.New("未知のメッセージタイプです")

// New は新しいメッセージを生成する。
// dataにはメッセージ固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func New(msgType Type, data any) (*Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("メッセージデータのシリアライズに失敗: %w", err)
	}

	return &Envelope{
		ID:         uuid.New().String(),
		Type:       msgType,
		Payload:    jsonData,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// DecodePayload はメッセージのPayloadフィールドを指定された型にデシリアライズする。
func DecodePayload[T any](e *Envelope) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Payload, &data); err != nil {
		return nil, fmt.Errorf("メッセージペイロードのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

// Decode はタイプタグに応じたペイロード構造体へデシリアライズする。
// 未知のタイプタグの場合はErrUnknownTypeを返す。
func Decode(e *Envelope) (any, error) {
	switch e.Type {
	case TypeZipExportRequested:
		return DecodePayload[ZipExportRequestedData](e)
	case TypeReceiptEmailRequested:
		return DecodePayload[ReceiptEmailRequestedData](e)
	case TypeMonthlyReportRequested:
		return DecodePayload[MonthlyReportRequestedData](e)
	default:
		return nil, fmt.Errorf("%w: type=%s", ErrUnknownType, e.Type)
	}
}
