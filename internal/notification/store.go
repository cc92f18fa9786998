package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	notificationdb "github.com/claimshub/claimshub/internal/notification/db"
	"github.com/claimshub/claimshub/pkg/notify"
)

// ValidationError は通知の入力検証エラーを表す。
// 呼び出し側はHTTP 400として扱う。
type ValidationError struct {
	// Reason は検証に失敗した理由。
	Reason string
}

// Error はエラーメッセージを返す。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("通知の検証に失敗: %s", e.Reason)
}

// Notification は保存済みの通知を表す。
type Notification struct {
	// ID は通知の一意識別子。挿入順に単調増加する。
	ID int64 `json:"id"`
	// Type は通知の種別。
	Type notify.Type `json:"type"`
	// Source は通知の発生元サービス名。
	Source string `json:"source"`
	// Target は通知先。GroupMessageはグループ名、PrivateMessageはユーザーID。
	Target string `json:"target,omitempty"`
	// MessageType はアプリケーション定義のメッセージ種別。
	MessageType string `json:"message_type"`
	// Message は通知本文（JSON）。
	Message json.RawMessage `json:"message"`
	// IsRead は閲覧者にとっての既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time `json:"created_at"`
}

// Page は通知一覧のページング結果を表す。
type Page struct {
	// Results はページ内の通知。作成日時の降順。
	Results []Notification `json:"results"`
	// CurrentPage は現在のページ番号（1始まり）。
	CurrentPage int `json:"current_page"`
	// PageCount は総ページ数。
	PageCount int `json:"page_count"`
	// PageSize は1ページあたりの件数。
	PageSize int `json:"page_size"`
	// RowCount は条件に一致する総件数。
	RowCount int `json:"row_count"`
}

// PageQuery は通知一覧の取得条件を表す。
type PageQuery struct {
	// UserID は閲覧者のユーザーID。
	UserID string
	// Role は閲覧者の所属グループ名。
	Role string
	// PageNumber は取得するページ番号（1始まり）。
	PageNumber int
	// PageSize は1ページあたりの件数。
	PageSize int
	// BeforeID を指定すると、その通知より古いものだけを対象にする。
	// ページ閲覧中の新規挿入でページ内容がずれるのを防ぐ。0は無指定。
	BeforeID int64
	// UnreadOnly がtrueの場合、未読の通知だけを対象にする。
	UnreadOnly bool
}

// Store は通知の永続化層。通知行は挿入のみで更新しない。
type Store struct {
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *notificationdb.Queries
}

// NewStore は新しいStoreを生成する。
func NewStore(queries *notificationdb.Queries) *Store {
	return &Store{queries: queries}
}

// Insert は通知を検証して保存する。
// Broadcast以外の種別ではTargetが必須。
func (s *Store) Insert(ctx context.Context, draft notify.Draft, message json.RawMessage) (*Notification, error) {
	if !draft.Type.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("未知の通知種別です: %s", draft.Type)}
	}
	if draft.MessageType == "" {
		return nil, &ValidationError{Reason: "メッセージ種別が指定されていません"}
	}
	if draft.Type != notify.TypeBroadcast && draft.Target == "" {
		return nil, &ValidationError{Reason: fmt.Sprintf("%s には通知先の指定が必要です", draft.Type)}
	}

	target := draft.Target
	if draft.Type == notify.TypeBroadcast {
		target = ""
	}

	row, err := s.queries.CreateNotification(ctx, notificationdb.CreateNotificationParams{
		Type:        string(draft.Type),
		Source:      draft.Source,
		Target:      target,
		MessageType: draft.MessageType,
		Message:     string(message),
	})
	if err != nil {
		return nil, fmt.Errorf("通知の保存に失敗: %w", err)
	}

	n := toNotification(row, false)
	return &n, nil
}

// PageByAudience は閲覧者に見える通知をページングして返す。
// 閲覧者に見えるのは、Broadcast、所属グループ宛のGroupMessage、
// 自分宛のPrivateMessageの3種類。
func (s *Store) PageByAudience(ctx context.Context, query PageQuery) (*Page, error) {
	pageNumber := query.PageNumber
	if pageNumber < 1 {
		pageNumber = 1
	}
	pageSize := query.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	offset := int64((pageNumber - 1) * pageSize)

	if query.UnreadOnly {
		return s.pageUnread(ctx, query, pageNumber, pageSize, offset)
	}

	rowCount, err := s.queries.CountNotificationsForAudience(ctx, notificationdb.CountNotificationsForAudienceParams{
		Role:     query.Role,
		UserID:   query.UserID,
		BeforeID: query.BeforeID,
	})
	if err != nil {
		return nil, fmt.Errorf("通知件数の取得に失敗: %w", err)
	}

	rows, err := s.queries.ListNotificationsForAudience(ctx, notificationdb.ListNotificationsForAudienceParams{
		Role:     query.Role,
		UserID:   query.UserID,
		BeforeID: query.BeforeID,
		Limit:    int64(pageSize),
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}

	results := make([]Notification, 0, len(rows))
	for _, row := range rows {
		results = append(results, toNotification(notificationdb.Notification{
			ID:          row.ID,
			Type:        row.Type,
			Source:      row.Source,
			Target:      row.Target,
			MessageType: row.MessageType,
			Message:     row.Message,
			CreatedAt:   row.CreatedAt,
		}, row.IsRead != 0))
	}

	return newPage(results, pageNumber, pageSize, int(rowCount)), nil
}

// pageUnread は未読の通知だけをページングして返す。
func (s *Store) pageUnread(ctx context.Context, query PageQuery, pageNumber, pageSize int, offset int64) (*Page, error) {
	rowCount, err := s.queries.CountUnreadNotificationsForAudience(ctx, notificationdb.CountUnreadNotificationsForAudienceParams{
		Role:     query.Role,
		UserID:   query.UserID,
		BeforeID: query.BeforeID,
	})
	if err != nil {
		return nil, fmt.Errorf("未読通知件数の取得に失敗: %w", err)
	}

	rows, err := s.queries.ListUnreadNotificationsForAudience(ctx, notificationdb.ListUnreadNotificationsForAudienceParams{
		Role:     query.Role,
		UserID:   query.UserID,
		BeforeID: query.BeforeID,
		Limit:    int64(pageSize),
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("未読通知一覧の取得に失敗: %w", err)
	}

	results := make([]Notification, 0, len(rows))
	for _, row := range rows {
		results = append(results, toNotification(row, false))
	}

	return newPage(results, pageNumber, pageSize, int(rowCount)), nil
}

// MarkRead は指定された通知を既読にし、新たに既読になった件数を返す。
// 既に既読の通知は数えない。何度呼んでも結果は変わらない。
func (s *Store) MarkRead(ctx context.Context, userID string, notificationIDs []int64) (int, error) {
	marked := 0
	for _, id := range notificationIDs {
		affected, err := s.queries.MarkNotificationRead(ctx, notificationdb.MarkNotificationReadParams{
			NotificationID: id,
			UserID:         userID,
		})
		if err != nil {
			return marked, fmt.Errorf("既読マークの保存に失敗: id=%d: %w", id, err)
		}
		marked += int(affected)
	}
	return marked, nil
}

// toNotification はDB行をドメインモデルに変換する。
func toNotification(row notificationdb.Notification, isRead bool) Notification {
	return Notification{
		ID:          row.ID,
		Type:        notify.Type(row.Type),
		Source:      row.Source,
		Target:      row.Target,
		MessageType: row.MessageType,
		Message:     json.RawMessage(row.Message),
		IsRead:      isRead,
		CreatedAt:   row.CreatedAt,
	}
}

// newPage はページング結果を組み立てる。
func newPage(results []Notification, pageNumber, pageSize, rowCount int) *Page {
	pageCount := (rowCount + pageSize - 1) / pageSize
	return &Page{
		Results:     results,
		CurrentPage: pageNumber,
		PageCount:   pageCount,
		PageSize:    pageSize,
		RowCount:    rowCount,
	}
}
