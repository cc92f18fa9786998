package notification

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	notificationdb "github.com/claimshub/claimshub/internal/notification/db"
	"github.com/claimshub/claimshub/pkg/middleware"
	"github.com/claimshub/claimshub/pkg/notify"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は通知の永続化層。
	store *Store
	// hub はリアルタイム配信ハブ。
	hub *Hub
	// db はSQLiteデータベース接続。
	db *sql.DB
	// jwtSecret はJWT署名の検証に使う共有シークレット。
	jwtSecret string
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とマイグレーション適用を行う。
func NewServer(port, dbPath, jwtSecret string, allowedOrigins []string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		port:      port,
		store:     NewStore(notificationdb.New(sqlDB)),
		hub:       NewHub(),
		db:        sqlDB,
		jwtSecret: jwtSecret,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		notifications := api.Group("/notifications")
		notifications.Use(middleware.JWTAuth(s.jwtSecret))
		{
			// 通知一覧取得（ページング・未読絞り込み対応）
			notifications.GET("", s.handleList())
			// 通知をまとめて既読にする
			notifications.POST("/read", s.handleMarkRead())
		}

		// リアルタイム配信ストリーム。EventSourceはヘッダーを付けられないため
		// 資格情報はクエリパラメータで受け取り、ハンドラ内で検証する。
		api.GET("/notifications/stream", s.handleStream())

		// 内部API（ジョブ実行基盤から呼び出される）
		internal := api.Group("/internal")
		{
			internal.POST("/notifications", s.handlePublish())
			internal.GET("/stats", s.handleStats())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}

// handleList は認証済みユーザーに見える通知一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		query := PageQuery{
			UserID:     userID,
			Role:       middleware.GetRole(c),
			PageNumber: intQuery(c, "page", 1),
			PageSize:   intQuery(c, "page_size", 20),
			BeforeID:   int64(intQuery(c, "before_id", 0)),
			UnreadOnly: c.Query("unread_only") == "true",
		}

		page, err := s.store.PageByAudience(c.Request.Context(), query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, page)
	}
}

// markReadRequest は既読マークリクエストのJSON構造。
type markReadRequest struct {
	// NotificationIDs は既読にする通知のIDの一覧。
	NotificationIDs []int64 `json:"notification_ids" binding:"required"`
}

// handleMarkRead は指定された通知をまとめて既読にするハンドラ。
// 新たに既読になった件数を返す。既に既読の通知は数えない。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req markReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		marked, err := s.store.MarkRead(c.Request.Context(), userID, req.NotificationIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "既読処理に失敗しました"})
			log.Printf("既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"marked": marked})
	}
}

// handleStream はリアルタイム配信のSSEストリームを開くハンドラ。
// トークンを検証できない接続もBroadcastだけは受け取れる。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID, role string
		if token := c.Query("token"); token != "" {
			claims, err := middleware.ParseToken(s.jwtSecret, token)
			if err != nil {
				log.Printf("[Hub] トークンの検証に失敗、匿名接続として扱う: %v", err)
			} else {
				userID = claims.UserID
				role = claims.Role
			}
		}

		conn := s.hub.Register(userID, role)
		defer s.hub.Unregister(conn)

		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		ctx := c.Request.Context()
		c.Stream(func(_ io.Writer) bool {
			select {
			case n, ok := <-conn.Notifications():
				if !ok {
					return false
				}
				c.SSEvent(string(n.Type), n)
				return true
			case <-ctx.Done():
				return false
			}
		})
	}
}

// publishRequest は通知発行リクエストのJSON構造。
type publishRequest struct {
	// Type は通知の種別。
	Type string `json:"type" binding:"required"`
	// Source は通知の発生元サービス名。
	Source string `json:"source"`
	// Target は通知先。Broadcast以外で必須。
	Target string `json:"target"`
	// MessageType はアプリケーション定義のメッセージ種別。
	MessageType string `json:"message_type" binding:"required"`
	// Message は通知本文（JSON）。
	Message json.RawMessage `json:"message"`
}

// handlePublish は通知を保存し、接続中のクライアントへ配信するハンドラ。
// 保存が完了してから配信する。保存に失敗した通知は決して配信されない。
func (s *Server) handlePublish() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req publishRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		draft := notify.Draft{
			Type:        notify.Type(req.Type),
			Source:      req.Source,
			Target:      req.Target,
			MessageType: req.MessageType,
		}

		message := req.Message
		if len(message) == 0 {
			message = json.RawMessage("{}")
		}

		n, err := s.store.Insert(c.Request.Context(), draft, message)
		if err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の保存に失敗しました"})
			log.Printf("通知保存エラー: %v", err)
			return
		}

		s.hub.Publish(*n)

		c.JSON(http.StatusCreated, n)
	}
}

// handleStats はハブの接続状況を返すハンドラ。運用時の監視に使う。
func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	}
}

// intQuery はクエリパラメータを整数として取得する。不正な値は既定値にする。
func intQuery(c *gin.Context, name string, fallback int) int {
	value := c.Query(name)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
