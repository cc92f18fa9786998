// Package notifycache はクライアント側の通知キャッシュを提供する。
//
// サーバーから取得したページとリアルタイム配信された通知を
// 通知IDで重複排除しながら1つの順序付き集合へ統合し、
// 未読数の導出と楽観的な既読反映を行う。
// すべての操作は状態を受け取り新しい状態を返す純粋関数で、
// 隠れた共有状態を持たない。
package notifycache
