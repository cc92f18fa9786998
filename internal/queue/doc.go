// Package queue はバックグラウンドジョブ用の永続メッセージキューを提供する。
//
// メッセージはSQLiteに永続化され、ワーカーがリースして処理する。
// 一時的な失敗は次回試行日時を設定して再投入し、
// 恒久的な失敗やルーティング不能なメッセージは
// ステータス付きで保持して手動調査を可能にする。
package queue
