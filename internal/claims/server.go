package claims

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claimshub/claimshub/internal/queue"
	"github.com/claimshub/claimshub/pkg/message"
	"github.com/claimshub/claimshub/pkg/middleware"
)

// Server は請求受付サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// queue は後続処理メッセージの投入先キュー。
	queue *queue.Queue
	// jwtSecret はJWT署名の検証に使う共有シークレット。
	jwtSecret string
}

// NewServer は新しい請求受付サーバーを生成する。
// 請求用データベースとキュー用データベースは別ファイルでもよい。
func NewServer(port, dbPath, queueDBPath, jwtSecret string, allowedOrigins []string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	queueDB, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", queueDBPath))
	if err != nil {
		return nil, fmt.Errorf("キューのデータベース接続に失敗: %w", err)
	}

	q, err := queue.New(queueDB)
	if err != nil {
		return nil, fmt.Errorf("キューの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		port:      port,
		db:        sqlDB,
		queue:     q,
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
	api.Use(middleware.JWTAuth(s.jwtSecret))
	{
		claims := api.Group("/claims")
		{
			// 請求の登録
			claims.POST("", s.handleCreate())
			// 請求の取得
			claims.GET("/:id", s.handleGet())
			// 請求書類のZIPエクスポート要求
			claims.POST("/:id/export", s.handleRequestExport())
		}

		reports := api.Group("/reports")
		{
			// 月次レポートの生成要求
			reports.POST("/monthly", s.handleRequestMonthlyReport())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "claims"})
	})
}

// claim は請求のJSON構造。
type claim struct {
	// ID は請求の一意識別子。
	ID string `json:"id"`
	// ClaimantName は請求者の氏名。
	ClaimantName string `json:"claimant_name"`
	// Email は請求者の連絡先メールアドレス。
	Email string `json:"email"`
	// CompanyID は請求先の保険会社ID。
	CompanyID string `json:"company_id"`
	// Status は請求の状態。
	Status string `json:"status"`
	// FileNames は添付書類のファイル名一覧。
	FileNames []string `json:"file_names"`
	// CreatedAt は請求の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// createClaimRequest は請求登録リクエストのJSON構造。
type createClaimRequest struct {
	// ClaimantName は請求者の氏名。
	ClaimantName string `json:"claimant_name" binding:"required"`
	// Email は請求者の連絡先メールアドレス。
	Email string `json:"email" binding:"required,email"`
	// CompanyID は請求先の保険会社ID。
	CompanyID string `json:"company_id" binding:"required"`
	// FileNames は添付書類のファイル名一覧。
	FileNames []string `json:"file_names"`
}

// handleCreate は請求を登録し、受領メール送信をキューへ投入するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createClaimRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		claimID := uuid.New().String()
		fileNames, err := json.Marshal(req.FileNames)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "書類一覧のシリアライズに失敗しました"})
			return
		}

		if _, err := s.db.ExecContext(c.Request.Context(), `
			INSERT INTO claims (id, claimant_name, email, company_id, file_names)
			VALUES (?, ?, ?, ?, ?)`,
			claimID, req.ClaimantName, req.Email, req.CompanyID, string(fileNames),
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "請求の登録に失敗しました"})
			log.Printf("請求登録エラー: %v", err)
			return
		}

		// 受領メールの送信は後続のジョブに委ねる
		env, err := message.New(message.TypeReceiptEmailRequested, message.ReceiptEmailRequestedData{
			ClaimID:      claimID,
			Email:        req.Email,
			ClaimantName: req.ClaimantName,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "受領メール要求の生成に失敗しました"})
			log.Printf("メッセージ生成エラー: %v", err)
			return
		}
		if err := s.queue.Enqueue(c.Request.Context(), env); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "受領メール要求の投入に失敗しました"})
			log.Printf("キュー投入エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":      claimID,
			"message": "請求を受け付けました",
		})
	}
}

// handleGet は請求を取得するハンドラ。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		claimID := c.Param("id")

		var (
			result        claim
			fileNamesJSON string
			createdAt     time.Time
		)
		err := s.db.QueryRowContext(c.Request.Context(), `
			SELECT id, claimant_name, email, company_id, status, file_names, created_at
			FROM claims WHERE id = ?`, claimID,
		).Scan(&result.ID, &result.ClaimantName, &result.Email, &result.CompanyID, &result.Status, &fileNamesJSON, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "請求が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "請求の取得に失敗しました"})
			log.Printf("請求取得エラー: %v", err)
			return
		}

		if err := json.Unmarshal([]byte(fileNamesJSON), &result.FileNames); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "書類一覧の解析に失敗しました"})
			log.Printf("書類一覧解析エラー: %v", err)
			return
		}
		result.CreatedAt = createdAt.Format(time.RFC3339)

		c.JSON(http.StatusOK, result)
	}
}

// handleRequestExport は請求書類のZIPエクスポートをキューへ投入するハンドラ。
// エクスポートの完了は要求者への個人通知で知らされる。
func (s *Server) handleRequestExport() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		claimID := c.Param("id")

		var fileNamesJSON string
		err := s.db.QueryRowContext(c.Request.Context(),
			`SELECT file_names FROM claims WHERE id = ?`, claimID,
		).Scan(&fileNamesJSON)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "請求が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "請求の取得に失敗しました"})
			log.Printf("請求取得エラー: %v", err)
			return
		}

		var fileNames []string
		if err := json.Unmarshal([]byte(fileNamesJSON), &fileNames); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "書類一覧の解析に失敗しました"})
			log.Printf("書類一覧解析エラー: %v", err)
			return
		}
		if len(fileNames) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "エクスポートできる書類がありません"})
			return
		}

		env, err := message.New(message.TypeZipExportRequested, message.ZipExportRequestedData{
			ClaimID:     claimID,
			RequestedBy: userID,
			FileNames:   fileNames,
			RequestedAt: time.Now().UTC(),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクスポート要求の生成に失敗しました"})
			log.Printf("メッセージ生成エラー: %v", err)
			return
		}
		if err := s.queue.Enqueue(c.Request.Context(), env); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクスポート要求の投入に失敗しました"})
			log.Printf("キュー投入エラー: %v", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message": "エクスポートを受け付けました。完了は通知でお知らせします",
		})
	}
}

// monthlyReportRequest は月次レポート生成リクエストのJSON構造。
type monthlyReportRequest struct {
	// CompanyID は対象の保険会社ID。
	CompanyID string `json:"company_id" binding:"required"`
	// Year は対象年。
	Year int `json:"year" binding:"required"`
	// Month は対象月（1〜12）。
	Month int `json:"month" binding:"required,min=1,max=12"`
}

// handleRequestMonthlyReport は月次レポート生成をキューへ投入するハンドラ。
// 管理者ロールのユーザーだけが要求できる。
func (s *Server) handleRequestMonthlyReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.GetRole(c) != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "月次レポートを要求する権限がありません"})
			return
		}

		var req monthlyReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		env, err := message.New(message.TypeMonthlyReportRequested, message.MonthlyReportRequestedData{
			CompanyID: req.CompanyID,
			Year:      req.Year,
			Month:     req.Month,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レポート要求の生成に失敗しました"})
			log.Printf("メッセージ生成エラー: %v", err)
			return
		}
		if err := s.queue.Enqueue(c.Request.Context(), env); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レポート要求の投入に失敗しました"})
			log.Printf("キュー投入エラー: %v", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message": "月次レポートの生成を受け付けました",
		})
	}
}
