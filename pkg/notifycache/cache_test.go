package notifycache

import (
	"testing"
	"time"
)

// testNotification はテスト用の通知を生成するヘルパー関数。
func testNotification(id int64, createdAt time.Time, isRead bool) Notification {
	return Notification{
		ID:          id,
		Type:        "Broadcast",
		Source:      "test",
		MessageType: "SystemNotice",
		Message:     []byte(`{"text":"hello"}`),
		IsRead:      isRead,
		CreatedAt:   createdAt,
	}
}

// TestLoadPage はページ取得の統合を検証する。
func TestLoadPage(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	t.Run("取得した通知が作成日時の降順で統合されること", func(t *testing.T) {
		t.Parallel()

		state := LoadPage(State{}, []Notification{
			testNotification(1, base, false),
			testNotification(3, base.Add(2*time.Minute), false),
			testNotification(2, base.Add(time.Minute), true),
		})

		entries := state.Entries()
		if len(entries) != 3 {
			t.Fatalf("エントリ数 = %d, want 3", len(entries))
		}
		for i, wantID := range []int64{3, 2, 1} {
			if entries[i].ID != wantID {
				t.Errorf("entries[%d].ID = %d, want %d", i, entries[i].ID, wantID)
			}
		}
		if state.UnreadCount() != 2 {
			t.Errorf("未読数 = %d, want 2", state.UnreadCount())
		}
	})

	t.Run("同じIDの通知は重複して追加されないこと", func(t *testing.T) {
		t.Parallel()

		page := []Notification{
			testNotification(1, base, false),
			testNotification(2, base.Add(time.Minute), false),
		}
		state := LoadPage(State{}, page)
		state = LoadPage(state, page)

		if state.Size() != 2 {
			t.Errorf("エントリ数 = %d, want 2", state.Size())
		}
	})

	t.Run("サーバーの既読状態が未変更のエントリに反映されること", func(t *testing.T) {
		t.Parallel()

		state := LoadPage(State{}, []Notification{testNotification(1, base, false)})
		state = LoadPage(state, []Notification{testNotification(1, base, true)})

		if state.UnreadCount() != 0 {
			t.Errorf("未読数 = %d, want 0", state.UnreadCount())
		}
	})

	t.Run("ローカルで既読化したエントリはサーバーの未読状態で戻らないこと", func(t *testing.T) {
		t.Parallel()

		state := LoadPage(State{}, []Notification{testNotification(1, base, false)})
		state, ids := CollapsePanel(state)
		if len(ids) != 1 {
			t.Fatalf("既読リクエスト対象 = %v, want 1件", ids)
		}

		// 既読リクエストが未処理のサーバーから古い状態を再取得する
		state = LoadPage(state, []Notification{testNotification(1, base, false)})

		if state.UnreadCount() != 0 {
			t.Errorf("未読数 = %d, want 0", state.UnreadCount())
		}
	})

	t.Run("元の状態が変更されないこと", func(t *testing.T) {
		t.Parallel()

		original := LoadPage(State{}, []Notification{testNotification(1, base, false)})
		_ = LoadPage(original, []Notification{testNotification(2, base.Add(time.Minute), false)})

		if original.Size() != 1 {
			t.Errorf("元の状態のエントリ数 = %d, want 1", original.Size())
		}
	})
}

// TestApplyPush はリアルタイム配信の統合を検証する。
func TestApplyPush(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	t.Run("配信された通知が未読として先頭に入ること", func(t *testing.T) {
		t.Parallel()

		state := LoadPage(State{}, []Notification{testNotification(1, base, true)})
		state = ApplyPush(state, testNotification(2, base.Add(time.Minute), false))

		entries := state.Entries()
		if entries[0].ID != 2 {
			t.Errorf("先頭のID = %d, want 2", entries[0].ID)
		}
		if state.UnreadCount() != 1 {
			t.Errorf("未読数 = %d, want 1", state.UnreadCount())
		}
	})

	t.Run("重複配信は無視されること", func(t *testing.T) {
		t.Parallel()

		state := ApplyPush(State{}, testNotification(1, base, false))
		size, unread := state.Size(), state.UnreadCount()

		state = ApplyPush(state, testNotification(1, base, false))

		if state.Size() != size || state.UnreadCount() != unread {
			t.Errorf("重複配信で状態が変化した: size=%d, unread=%d", state.Size(), state.UnreadCount())
		}
	})

	t.Run("配信後のページ再取得でも重複しないこと", func(t *testing.T) {
		t.Parallel()

		state := ApplyPush(State{}, testNotification(1, base, false))
		state = LoadPage(state, []Notification{testNotification(1, base, false)})

		if state.Size() != 1 {
			t.Errorf("エントリ数 = %d, want 1", state.Size())
		}
	})
}

// TestCollapsePanel はパネルを閉じたときの楽観的既読を検証する。
func TestCollapsePanel(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	t.Run("未読のIDだけが既読リクエスト対象になること", func(t *testing.T) {
		t.Parallel()

		state := LoadPage(State{}, []Notification{
			testNotification(1, base, true),
			testNotification(2, base.Add(time.Minute), false),
			testNotification(3, base.Add(2*time.Minute), false),
		})

		state, ids := CollapsePanel(state)

		if len(ids) != 2 {
			t.Errorf("既読リクエスト対象 = %v, want 2件", ids)
		}
		if state.UnreadCount() != 0 {
			t.Errorf("未読数 = %d, want 0", state.UnreadCount())
		}
	})

	t.Run("2回目のCollapseでは対象が無いこと", func(t *testing.T) {
		t.Parallel()

		state := LoadPage(State{}, []Notification{testNotification(1, base, false)})
		state, _ = CollapsePanel(state)
		_, ids := CollapsePanel(state)

		if len(ids) != 0 {
			t.Errorf("既読リクエスト対象 = %v, want 0件", ids)
		}
	})

	t.Run("初期ページと配信を統合してから閉じるシナリオ", func(t *testing.T) {
		t.Parallel()

		// 5件取得（うち3件未読）
		state := LoadPage(State{}, []Notification{
			testNotification(1, base, true),
			testNotification(2, base.Add(1*time.Minute), true),
			testNotification(3, base.Add(2*time.Minute), false),
			testNotification(4, base.Add(3*time.Minute), false),
			testNotification(5, base.Add(4*time.Minute), false),
		})

		// 2件のリアルタイム配信
		state = ApplyPush(state, testNotification(6, base.Add(5*time.Minute), false))
		state = ApplyPush(state, testNotification(7, base.Add(6*time.Minute), false))

		if state.UnreadCount() != 5 {
			t.Fatalf("未読数 = %d, want 5", state.UnreadCount())
		}

		state, ids := CollapsePanel(state)

		if state.UnreadCount() != 0 {
			t.Errorf("未読数 = %d, want 0", state.UnreadCount())
		}
		if state.Size() != 7 {
			t.Errorf("エントリ数 = %d, want 7", state.Size())
		}
		if len(ids) != 5 {
			t.Errorf("既読リクエスト対象 = %v, want 5件", ids)
		}
	})
}
