// Package message はバックグラウンドジョブへ渡す型付きメッセージを定義する。
//
// メッセージはタイプタグで識別されるイミュータブルなペイロードであり、
// キューに永続化された後、ジョブルーターによって一度だけ消費される。
// 未知のタイプタグは設定エラーとして明示的に扱う。
package message
