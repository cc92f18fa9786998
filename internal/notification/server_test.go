package notification

import (
	"bufio"
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	notificationdb "github.com/claimshub/claimshub/internal/notification/db"
	"github.com/claimshub/claimshub/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key"

// setupTestServer はテスト用の通知サーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	// インメモリDBは接続ごとに独立するため、単一接続に固定する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	router := gin.New()
	s := &Server{
		router:    router,
		port:      "0",
		store:     NewStore(notificationdb.New(sqlDB)),
		hub:       NewHub(),
		db:        sqlDB,
		jwtSecret: testJWTSecret,
	}
	s.setupRoutes()

	return s, router
}

// testToken はテスト用のJWTを生成するヘルパー関数。
func testToken(t *testing.T, userID, role string) string {
	t.Helper()

	token, err := middleware.GenerateJWT(testJWTSecret, userID, userID+"@example.com", role)
	if err != nil {
		t.Fatalf("テスト用JWTの生成に失敗: %v", err)
	}
	return token
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// publishTestNotification は内部APIで通知を発行するヘルパー関数。
func publishTestNotification(t *testing.T, router *gin.Engine, notifType, target, messageType string) {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/api/v1/internal/notifications", "", map[string]any{
		"type":         notifType,
		"source":       "test",
		"target":       target,
		"message_type": messageType,
		"message":      map[string]string{"text": "hello"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("通知の発行に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
}

// TestHandlePublish は通知発行APIを検証する。
func TestHandlePublish(t *testing.T) {
	t.Parallel()

	t.Run("通知が保存され201とIDが返ること", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t)
		w := doRequest(router, http.MethodPost, "/api/v1/internal/notifications", "", map[string]any{
			"type":         "PrivateMessage",
			"source":       "jobrunner",
			"target":       "user-42",
			"message_type": "ZipExportFinished",
			"message":      map[string]string{"file_name": "claim-1.zip"},
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
		}

		var n Notification
		if err := json.Unmarshal(w.Body.Bytes(), &n); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if n.ID == 0 {
			t.Error("IDが採番されていない")
		}
	})

	t.Run("GroupMessageで通知先が無い場合は400", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t)
		w := doRequest(router, http.MethodPost, "/api/v1/internal/notifications", "", map[string]any{
			"type":         "GroupMessage",
			"source":       "jobrunner",
			"message_type": "ReceiptEmailSent",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("未知の通知種別は400", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t)
		w := doRequest(router, http.MethodPost, "/api/v1/internal/notifications", "", map[string]any{
			"type":         "SmokeSignal",
			"source":       "jobrunner",
			"target":       "user-1",
			"message_type": "Whatever",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleList は通知一覧APIを検証する。
func TestHandleList(t *testing.T) {
	t.Parallel()

	t.Run("閲覧者に見える通知だけが返ること", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t)
		publishTestNotification(t, router, "Broadcast", "", "SystemNotice")
		publishTestNotification(t, router, "GroupMessage", "store_staff", "ReceiptEmailSent")
		publishTestNotification(t, router, "GroupMessage", "agent", "ReceiptEmailSent")
		publishTestNotification(t, router, "PrivateMessage", "user-42", "ZipExportFinished")
		publishTestNotification(t, router, "PrivateMessage", "user-7", "ZipExportFinished")

		w := doRequest(router, http.MethodGet, "/api/v1/notifications", testToken(t, "user-42", "store_staff"), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}

		var page Page
		if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if page.RowCount != 3 {
			t.Errorf("RowCount = %d, want 3: %+v", page.RowCount, page)
		}
	})

	t.Run("認証なしの場合は401", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t)
		w := doRequest(router, http.MethodGet, "/api/v1/notifications", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("未読絞り込みと既読APIが連動すること", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t)
		publishTestNotification(t, router, "Broadcast", "", "SystemNotice")
		publishTestNotification(t, router, "Broadcast", "", "SystemNotice")
		token := testToken(t, "user-1", "")

		w := doRequest(router, http.MethodGet, "/api/v1/notifications?unread_only=true", token, nil)
		var page Page
		if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if page.RowCount != 2 {
			t.Fatalf("未読件数 = %d, want 2", page.RowCount)
		}

		// 1件だけ既読にする
		w = doRequest(router, http.MethodPost, "/api/v1/notifications/read", token, map[string]any{
			"notification_ids": []int64{page.Results[0].ID},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("既読APIのステータスコード = %d: %s", w.Code, w.Body.String())
		}
		var markResp struct {
			Marked int `json:"marked"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &markResp); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if markResp.Marked != 1 {
			t.Errorf("既読件数 = %d, want 1", markResp.Marked)
		}

		w = doRequest(router, http.MethodGet, "/api/v1/notifications?unread_only=true", token, nil)
		if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if page.RowCount != 1 {
			t.Errorf("既読後の未読件数 = %d, want 1", page.RowCount)
		}
	})
}

// sseEvent はSSEストリームから読み取った1つのイベント。
type sseEvent struct {
	// Name はイベント名（通知種別）。
	Name string
	// Data はデータ行（JSON）。
	Data string
}

// openTestStream はSSEストリームへ接続し、受信イベントをチャネルで返すヘルパー関数。
func openTestStream(t *testing.T, baseURL, token string) <-chan sseEvent {
	t.Helper()

	url := baseURL + "/api/v1/notifications/stream"
	if token != "" {
		url += "?token=" + token
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("リクエストの生成に失敗: %v", err)
	}
	resp, err := http.DefaultClient.Do(req) //nolint:bodyclose
	if err != nil {
		t.Fatalf("ストリームへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		var current sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				current.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				current.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				events <- current
				current = sseEvent{}
			}
		}
	}()

	return events
}

// recvEvent はストリームからイベントを1件受信するヘルパー関数。
func recvEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()

	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("ストリームが閉じられている")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("イベントの受信がタイムアウト")
	}
	return sseEvent{}
}

// TestHandleStream はSSEストリームの配信を検証する。
func TestHandleStream(t *testing.T) {
	t.Parallel()

	t.Run("PrivateMessageが対象ユーザーのストリームだけに流れること", func(t *testing.T) {
		t.Parallel()

		s, router := setupTestServer(t)
		ts := httptest.NewServer(router)
		t.Cleanup(ts.Close)

		target := openTestStream(t, ts.URL, testToken(t, "user-42", "store_staff"))
		other := openTestStream(t, ts.URL, testToken(t, "user-7", "store_staff"))
		waitForConnections(t, s.hub, 2)

		publishTestNotification(t, router, "PrivateMessage", "user-42", "ZipExportFinished")

		ev := recvEvent(t, target)
		if ev.Name != "PrivateMessage" {
			t.Errorf("イベント名 = %q, want PrivateMessage", ev.Name)
		}
		var n Notification
		if err := json.Unmarshal([]byte(ev.Data), &n); err != nil {
			t.Fatalf("イベントデータの解析に失敗: %v", err)
		}
		if n.Target != "user-42" || n.MessageType != "ZipExportFinished" {
			t.Errorf("通知内容が不正: %+v", n)
		}

		select {
		case ev := <-other:
			t.Errorf("他ユーザーのストリームに通知が流れた: %+v", ev)
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("トークンなしの接続はBroadcastだけを受け取ること", func(t *testing.T) {
		t.Parallel()

		s, router := setupTestServer(t)
		ts := httptest.NewServer(router)
		t.Cleanup(ts.Close)

		anonymous := openTestStream(t, ts.URL, "")
		waitForConnections(t, s.hub, 1)

		publishTestNotification(t, router, "PrivateMessage", "user-42", "ZipExportFinished")
		publishTestNotification(t, router, "Broadcast", "", "SystemNotice")

		ev := recvEvent(t, anonymous)
		if ev.Name != "Broadcast" {
			t.Errorf("イベント名 = %q, want Broadcast", ev.Name)
		}
	})
}

// waitForConnections はハブの接続数が期待値に達するまで待つヘルパー関数。
func waitForConnections(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Stats().Connections >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("接続数が%dに達しない: %+v", want, hub.Stats())
}

// TestHealthCheck はヘルスチェックエンドポイントを検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	_, router := setupTestServer(t)
	w := doRequest(router, http.MethodGet, "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("レスポンスが不正: %s", w.Body.String())
	}
}
