// Package notification は通知サービスの内部実装を提供する。
//
// ジョブ実行基盤などから発行された通知をSQLiteに保存し、
// SSEで接続中のクライアントへリアルタイム配信する。
// 通知の一覧取得（ページング・未読絞り込み）と既読管理も行う。
package notification
