// Package jobrunner はバックグラウンドジョブの実行基盤を提供する。
//
// キューからメッセージをリースし、タイプタグに応じたハンドラへ
// ルーティングして実行する。一時的な失敗は上限付きのバックオフ付き
// リトライで再試行し、恒久的な失敗は即座に終端状態へ遷移させる。
// ジョブが成功すると0個または1個の通知を通知サービスへ登録する。
package jobrunner
