// Package notify は通知の共有コントラクトと通知サービスへのクライアントを提供する。
//
// 通知の宛先種別（全体・グループ・個人）と、ジョブ実行サービスが
// 通知サービスへ通知を登録する際のリクエスト構造を定義する。
package notify
