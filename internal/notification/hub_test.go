package notification

import (
	"testing"
	"time"

	"github.com/claimshub/claimshub/pkg/notify"
)

// recvNotification は接続から通知を1件受信するヘルパー関数。
func recvNotification(t *testing.T, conn *Conn) Notification {
	t.Helper()

	select {
	case n, ok := <-conn.Notifications():
		if !ok {
			t.Fatal("チャネルが閉じられている")
		}
		return n
	case <-time.After(time.Second):
		t.Fatal("通知の受信がタイムアウト")
	}
	return Notification{}
}

// assertNoNotification は接続に通知が届いていないことを確認するヘルパー関数。
func assertNoNotification(t *testing.T, conn *Conn) {
	t.Helper()

	select {
	case n, ok := <-conn.Notifications():
		if ok {
			t.Errorf("届くべきでない通知を受信: %+v", n)
		}
	default:
	}
}

// TestHubPublish は通知種別ごとの配信先を検証する。
func TestHubPublish(t *testing.T) {
	t.Parallel()

	t.Run("Broadcastは匿名接続を含む全接続に届くこと", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		staff := hub.Register("user-1", "store_staff")
		agent := hub.Register("user-2", "agent")
		anonymous := hub.Register("", "")

		hub.Publish(Notification{ID: 1, Type: notify.TypeBroadcast, MessageType: "SystemNotice"})

		for _, conn := range []*Conn{staff, agent, anonymous} {
			n := recvNotification(t, conn)
			if n.ID != 1 {
				t.Errorf("ID = %d, want 1", n.ID)
			}
			// 各接続は高々1回だけ受け取る
			assertNoNotification(t, conn)
		}
	})

	t.Run("GroupMessageは対象グループの接続だけに届くこと", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		staff := hub.Register("user-1", "store_staff")
		staff2 := hub.Register("user-2", "store_staff")
		agent := hub.Register("user-3", "agent")
		anonymous := hub.Register("", "")

		hub.Publish(Notification{ID: 1, Type: notify.TypeGroupMessage, Target: "store_staff", MessageType: "ReceiptEmailSent"})

		for _, conn := range []*Conn{staff, staff2} {
			n := recvNotification(t, conn)
			if n.Target != "store_staff" {
				t.Errorf("Target = %q, want store_staff", n.Target)
			}
		}
		assertNoNotification(t, agent)
		assertNoNotification(t, anonymous)
	})

	t.Run("PrivateMessageは対象ユーザーの全接続に届くこと", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		// 同じユーザーの複数タブを模倣する
		tab1 := hub.Register("user-42", "store_staff")
		tab2 := hub.Register("user-42", "store_staff")
		other := hub.Register("user-7", "store_staff")

		hub.Publish(Notification{ID: 1, Type: notify.TypePrivateMessage, Target: "user-42", MessageType: "ZipExportFinished"})

		for _, conn := range []*Conn{tab1, tab2} {
			n := recvNotification(t, conn)
			if n.ID != 1 {
				t.Errorf("ID = %d, want 1", n.ID)
			}
		}
		assertNoNotification(t, other)
	})
}

// TestHubUnregister は切断後の後始末を検証する。
func TestHubUnregister(t *testing.T) {
	t.Parallel()

	t.Run("登録解除後は配信されずチャネルが閉じること", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		conn := hub.Register("user-1", "store_staff")
		remaining := hub.Register("user-2", "store_staff")

		hub.Unregister(conn)
		hub.Publish(Notification{ID: 1, Type: notify.TypeBroadcast, MessageType: "SystemNotice"})

		if _, ok := <-conn.Notifications(); ok {
			t.Error("登録解除後のチャネルは閉じられるべき")
		}
		recvNotification(t, remaining)
	})

	t.Run("最後の接続が抜けたら登録簿から消えること", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		conn := hub.Register("user-1", "store_staff")

		stats := hub.Stats()
		if stats.Connections != 1 || stats.Users != 1 || stats.Groups != 1 {
			t.Errorf("登録直後のStats = %+v", stats)
		}

		hub.Unregister(conn)

		stats = hub.Stats()
		if stats.Connections != 0 || stats.Users != 0 || stats.Groups != 0 {
			t.Errorf("登録解除後のStats = %+v", stats)
		}
	})
}

// TestHubSlowConnection は遅い接続の隔離を検証する。
func TestHubSlowConnection(t *testing.T) {
	t.Parallel()

	t.Run("バッファ溢れの接続があっても他の接続へ配信が続くこと", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		slow := hub.Register("user-slow", "store_staff")
		healthy := hub.Register("user-healthy", "store_staff")

		// 受信しない接続のバッファを埋める
		for i := 0; i < connBufferSize+3; i++ {
			hub.Publish(Notification{ID: int64(i + 1), Type: notify.TypePrivateMessage, Target: "user-slow", MessageType: "ZipExportFinished"})
		}

		hub.Publish(Notification{ID: 100, Type: notify.TypeBroadcast, MessageType: "SystemNotice"})

		n := recvNotification(t, healthy)
		if n.ID != 100 {
			t.Errorf("ID = %d, want 100", n.ID)
		}

		if dropped := hub.Stats().Dropped; dropped < 3 {
			t.Errorf("破棄件数 = %d, want 3以上", dropped)
		}

		// 遅い接続もバッファ分は受信できる
		if n := recvNotification(t, slow); n.ID != 1 {
			t.Errorf("遅い接続の先頭通知ID = %d, want 1", n.ID)
		}
	})
}
