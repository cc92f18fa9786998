package notifycache

import (
	"encoding/json"
	"sort"
	"time"
)

// Notification はキャッシュが扱う通知のクライアント側ミラー。
type Notification struct {
	// ID は通知の一意識別子。キャッシュの重複排除キー。
	ID int64 `json:"id"`
	// Type は通知の種別。
	Type string `json:"type"`
	// Source は通知の発生元サービス名。
	Source string `json:"source"`
	// Target は通知先。
	Target string `json:"target,omitempty"`
	// MessageType はアプリケーション定義のメッセージ種別。
	MessageType string `json:"message_type"`
	// Message は通知本文（JSON）。
	Message json.RawMessage `json:"message"`
	// IsRead はサーバーが返した既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time `json:"created_at"`
}

// Entry はキャッシュ内の1エントリ。
type Entry struct {
	// Notification は通知本体。
	Notification
	// locallyRead は既読をローカルで楽観的に反映したことを表す。
	// trueの場合、後から取得したページの既読状態では上書きしない。
	locallyRead bool
}

// State はキャッシュの状態。ゼロ値は空のキャッシュとして使える。
// 各操作は新しいStateを返し、引数のStateを変更しない。
type State struct {
	// entries は作成日時の降順（同時刻はIDの降順）で並ぶエントリ。
	entries []Entry
}

// Size はキャッシュ内のエントリ数を返す。
func (s State) Size() int {
	return len(s.entries)
}

// UnreadCount は未読エントリの数を返す。常に非負で、
// 既読フラグが立っていないエントリの数と一致する。
func (s State) UnreadCount() int {
	count := 0
	for _, e := range s.entries {
		if !e.isRead() {
			count++
		}
	}
	return count
}

// Entries は現在のエントリの通知を新しいスライスで返す。
func (s State) Entries() []Notification {
	results := make([]Notification, 0, len(s.entries))
	for _, e := range s.entries {
		n := e.Notification
		n.IsRead = e.isRead()
		results = append(results, n)
	}
	return results
}

// isRead はローカルの楽観的既読を含めた既読状態を返す。
func (e Entry) isRead() bool {
	return e.IsRead || e.locallyRead
}

// LoadPage は取得したページをキャッシュへ統合した新しい状態を返す。
// 既存のIDと一致する通知は重複して追加しない。
// サーバーの既読状態は、ローカルで既読化していないエントリに対してのみ正とする。
func LoadPage(s State, fetched []Notification) State {
	entries := cloneEntries(s.entries)
	index := indexByID(entries)

	for _, n := range fetched {
		if i, ok := index[n.ID]; ok {
			if !entries[i].locallyRead {
				entries[i].Notification = n
			}
			continue
		}
		index[n.ID] = len(entries)
		entries = append(entries, Entry{Notification: n})
	}

	sortEntries(entries)
	return State{entries: entries}
}

// ApplyPush はリアルタイム配信された通知を統合した新しい状態を返す。
// 同じIDが既に存在する場合は何もしない（重複配信の無害化）。
// 新規の通知は未読として追加される。
func ApplyPush(s State, n Notification) State {
	for _, e := range s.entries {
		if e.ID == n.ID {
			return s
		}
	}

	entries := cloneEntries(s.entries)
	n.IsRead = false
	entries = append(entries, Entry{Notification: n})
	sortEntries(entries)
	return State{entries: entries}
}

// CollapsePanel は通知パネルを閉じたときの楽観的既読を適用する。
// 未読だったエントリをすべて既読へ反映した新しい状態と、
// サーバーへ既読リクエストを送るべき通知IDの一覧を返す。
// 返されるIDには既読済みのものは含まれない。
func CollapsePanel(s State) (State, []int64) {
	entries := cloneEntries(s.entries)
	var ids []int64
	for i := range entries {
		if entries[i].isRead() {
			continue
		}
		entries[i].locallyRead = true
		ids = append(ids, entries[i].ID)
	}
	return State{entries: entries}, ids
}

// cloneEntries はエントリのスライスを複製する。
func cloneEntries(entries []Entry) []Entry {
	cloned := make([]Entry, len(entries))
	copy(cloned, entries)
	return cloned
}

// indexByID はIDからスライス位置への対応表を作る。
func indexByID(entries []Entry) map[int64]int {
	index := make(map[int64]int, len(entries))
	for i, e := range entries {
		index[e.ID] = i
	}
	return index
}

// sortEntries は作成日時の降順、同時刻はIDの降順で並べ替える。
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}
