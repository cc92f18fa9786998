package notification

import (
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"

	"github.com/claimshub/claimshub/pkg/notify"
)

// connBufferSize は接続ごとの送信バッファの長さ。
// バッファが溢れた接続への通知は破棄し、他の接続への配信は継続する。
const connBufferSize = 32

// groupShardCount はグループ登録簿のシャード数。
// グループ名のハッシュでシャードを選び、ロック競合を分散する。
const groupShardCount = 16

// Conn はハブに登録された1本のリアルタイム接続を表す。
// 同じユーザーが複数の接続（複数タブなど）を持つことがある。
type Conn struct {
	// userID は接続しているユーザーのID。認証できなかった場合は空。
	userID string
	// role は接続しているユーザーの所属グループ名。空の場合はグループ未所属。
	role string
	// ch は配信待ちの通知を保持するバッファ付きチャネル。
	ch chan Notification
}

// Notifications はこの接続宛の通知を受け取るチャネルを返す。
// 接続がハブから登録解除されるとチャネルは閉じられる。
func (c *Conn) Notifications() <-chan Notification {
	return c.ch
}

// groupShard はグループ名から接続集合への対応表の1シャード。
type groupShard struct {
	// mu はgroupsを保護する。
	mu sync.RWMutex
	// groups はグループ名から所属接続の集合への対応表。
	groups map[string]map[*Conn]struct{}
}

// HubStats はハブの現在の接続状況のスナップショット。
type HubStats struct {
	// Connections は登録中の接続数。
	Connections int `json:"connections"`
	// Users は接続中のユニークユーザー数。
	Users int `json:"users"`
	// Groups は1つ以上の接続を持つグループ数。
	Groups int `json:"groups"`
	// Dropped はバッファ溢れで破棄した通知の累計数。
	Dropped int64 `json:"dropped"`
}

// Hub は保存済みの通知を接続中のクライアントへ配信する。
// すべてのメソッドは複数のゴルーチンから並行して呼び出せる。
type Hub struct {
	// shards はグループ登録簿。グループ名のハッシュでシャードを選ぶ。
	shards [groupShardCount]*groupShard
	// mu はconnsとbyUserを保護する。
	mu sync.RWMutex
	// conns は登録中の全接続の集合。Broadcastの配信先。
	conns map[*Conn]struct{}
	// byUser はユーザーIDから接続集合への対応表。PrivateMessageの配信先。
	byUser map[string]map[*Conn]struct{}
	// dropped はバッファ溢れで破棄した通知の累計数。
	dropped atomic.Int64
}

// NewHub は新しいハブを生成する。
func NewHub() *Hub {
	h := &Hub{
		conns:  make(map[*Conn]struct{}),
		byUser: make(map[string]map[*Conn]struct{}),
	}
	for i := range h.shards {
		h.shards[i] = &groupShard{groups: make(map[string]map[*Conn]struct{})}
	}
	return h
}

// Register は新しい接続をハブに登録する。
// userIDが空の場合は匿名接続としてBroadcastのみ受け取る。
// roleが空の場合はグループ宛の通知を受け取らない。
func (h *Hub) Register(userID, role string) *Conn {
	conn := &Conn{
		userID: userID,
		role:   role,
		ch:     make(chan Notification, connBufferSize),
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	if userID != "" {
		if h.byUser[userID] == nil {
			h.byUser[userID] = make(map[*Conn]struct{})
		}
		h.byUser[userID][conn] = struct{}{}
	}
	h.mu.Unlock()

	if role != "" {
		shard := h.shardFor(role)
		shard.mu.Lock()
		if shard.groups[role] == nil {
			shard.groups[role] = make(map[*Conn]struct{})
		}
		shard.groups[role][conn] = struct{}{}
		shard.mu.Unlock()
	}

	return conn
}

// Unregister は接続をハブから取り除き、チャネルを閉じる。
// 切断された接続への配信は即座に止まる。
func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	if conn.userID != "" {
		if set := h.byUser[conn.userID]; set != nil {
			delete(set, conn)
			if len(set) == 0 {
				delete(h.byUser, conn.userID)
			}
		}
	}
	h.mu.Unlock()

	if conn.role != "" {
		shard := h.shardFor(conn.role)
		shard.mu.Lock()
		if set := shard.groups[conn.role]; set != nil {
			delete(set, conn)
			if len(set) == 0 {
				delete(shard.groups, conn.role)
			}
		}
		shard.mu.Unlock()
	}

	// 両方の登録簿から外れた後に閉じる。配信は登録簿のロック下で行われるため、
	// ここに到達した時点でこの接続への送信は発生しない。
	close(conn.ch)
}

// Publish は保存済みの通知を該当する接続へ配信する。
// 各接続は1つの通知を高々1回受け取る。
func (h *Hub) Publish(n Notification) {
	switch n.Type {
	case notify.TypeBroadcast:
		h.mu.RLock()
		for conn := range h.conns {
			h.send(conn, n)
		}
		h.mu.RUnlock()
	case notify.TypeGroupMessage:
		shard := h.shardFor(n.Target)
		shard.mu.RLock()
		for conn := range shard.groups[n.Target] {
			h.send(conn, n)
		}
		shard.mu.RUnlock()
	case notify.TypePrivateMessage:
		h.mu.RLock()
		for conn := range h.byUser[n.Target] {
			h.send(conn, n)
		}
		h.mu.RUnlock()
	default:
		log.Printf("[Hub] 未知の通知種別のため配信をスキップ: type=%s, id=%d", n.Type, n.ID)
	}
}

// send は接続へ通知を渡す。バッファが一杯の場合は破棄する。
// 遅い接続が他の接続への配信を妨げないようにするため、決してブロックしない。
func (h *Hub) send(conn *Conn, n Notification) {
	select {
	case conn.ch <- n:
	default:
		h.dropped.Add(1)
		log.Printf("[Hub] バッファ溢れのため通知を破棄: user_id=%s, notification_id=%d", conn.userID, n.ID)
	}
}

// Stats は現在の接続状況のスナップショットを返す。
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	connections := len(h.conns)
	users := len(h.byUser)
	h.mu.RUnlock()

	groups := 0
	for _, shard := range h.shards {
		shard.mu.RLock()
		groups += len(shard.groups)
		shard.mu.RUnlock()
	}

	return HubStats{
		Connections: connections,
		Users:       users,
		Groups:      groups,
		Dropped:     h.dropped.Load(),
	}
}

// shardFor はグループ名に対応するシャードを返す。
func (h *Hub) shardFor(group string) *groupShard {
	hash := fnv.New32a()
	hash.Write([]byte(group))
	return h.shards[hash.Sum32()%groupShardCount]
}
