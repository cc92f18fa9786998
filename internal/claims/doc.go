// Package claims は保険請求受付サービスの内部実装を提供する。
//
// 請求の登録と参照を行い、受領メール送信や書類エクスポートなどの
// 後続処理をメッセージとしてキューへ投入する。
// キューへの投入が完了した時点でAPIは応答し、ジョブの完了は待たない。
package claims
