// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// ジョブ実行サービスから通知サービスへの通知登録、
// 請求受付サービスからのキュー投入確認など、
// サービス間の通信パターンを統一する。
// HTTPエラーはStatusErrorとして返し、呼び出し側が
// 一時的な失敗（5xx）と恒久的な失敗（4xx）を区別できるようにする。
package httpclient
