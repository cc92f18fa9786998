package jobrunner

import (
	"context"
	"errors"

	"github.com/claimshub/claimshub/pkg/httpclient"
)

// ErrNoHandler は対応するハンドラが登録されていないことを表すエラー。
// 設定エラーであり、リトライせずメッセージを保持して調査対象とする。
var ErrNoHandler = errors.New("メッセージタイプに対応するハンドラが登録されていません")

// transientError は一時的な失敗を表すラッパー。
// リトライポリシーの対象となる。
type transientError struct {
	err error
}

// Error はエラーメッセージを返す。
func (e *transientError) Error() string {
	return e.err.Error()
}

// Unwrap はラップされた元のエラーを返す。
func (e *transientError) Unwrap() error {
	return e.err
}

// Transient はエラーを一時的な失敗として分類する。
// タイムアウトや依存サービスの一時不調など、再試行で回復しうる失敗に使用する。
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient はエラーが一時的な失敗かどうかを判定する。
// 明示的にTransientでラップされたもののほか、コンテキストの期限超過、
// 依存サービスの5xx応答も一時的な失敗として扱う。
// それ以外（不正な入力、参照先エンティティの欠如）は恒久的な失敗とする。
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return false
}
