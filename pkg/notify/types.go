package notify

// Type は通知の宛先種別を表す。
type Type string

const (
	// TypeBroadcast は接続中の全クライアントへの通知を表す。
	TypeBroadcast Type = "Broadcast"
	// TypeGroupMessage は特定ロールのグループに属するクライアントへの通知を表す。
	TypeGroupMessage Type = "GroupMessage"
	// TypePrivateMessage は特定ユーザーへの通知を表す。
	TypePrivateMessage Type = "PrivateMessage"
)

// Valid は既知の宛先種別かどうかを返す。
func (t Type) Valid() bool {
	switch t {
	case TypeBroadcast, TypeGroupMessage, TypePrivateMessage:
		return true
	}
	return false
}

// Draft は永続化前の通知を表す。
// ジョブ実行サービスが構築し、通知サービスのInsertでIDと作成日時が付与される。
type Draft struct {
	// Type は通知の宛先種別。
	Type Type `json:"type"`
	// Source は通知の発生元（ジョブ名やサービス名）。
	Source string `json:"source"`
	// Target は宛先。GroupMessageの場合はロール名、PrivateMessageの場合はユーザーID。
	// Broadcastの場合は空。
	Target string `json:"target"`
	// MessageType はペイロードのスキーマを識別するタグ。
	MessageType string `json:"message_type"`
	// Message は通知固有のペイロード（JSONとして永続化される）。
	Message any `json:"message"`
}
