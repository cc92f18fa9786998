package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/claimshub/claimshub/pkg/message"
)

// Status はキュー内メッセージの処理状態を表す。
type Status string

const (
	// StatusEnqueued は処理待ちの状態。
	StatusEnqueued Status = "enqueued"
	// StatusRunning はワーカーがリース中の状態。
	StatusRunning Status = "running"
	// StatusSucceeded は処理が成功した状態。
	StatusSucceeded Status = "succeeded"
	// StatusFailed は試行回数を使い切って恒久的に失敗した状態。
	StatusFailed Status = "failed"
	// StatusUnroutable は対応するハンドラが登録されていない状態。
	// メッセージは破棄せず、手動調査のために保持する。
	StatusUnroutable Status = "unroutable"
)

// timeFormat はキュー内で日時を文字列比較できるようにするための固定幅フォーマット。
// 小数秒を9桁固定にすることで辞書順と時系列順が一致する。
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// defaultLeaseTimeout はリースの既定有効期限。
// 更新がこの時間を超えて途絶えたrunningメッセージは、
// ワーカーのクラッシュとみなして再リース対象に戻す。
const defaultLeaseTimeout = 5 * time.Minute

// ErrEmpty はリース可能なメッセージが存在しないことを表すエラー。
var ErrEmpty = errors.New("リース可能なメッセージがありません")

// Leased はワーカーがリースしたメッセージを表す。
type Leased struct {
	// Envelope はリースされたメッセージ本体。
	Envelope message.Envelope
	// Attempts は今回を含めた試行回数。
	Attempts int
}

// Queue はSQLiteを用いた永続メッセージキュー。
// 複数のワーカーおよび複数のプロデューサから並行して使用できる。
type Queue struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// leaseTimeout はリースの有効期限。
	leaseTimeout time.Duration
}

// New は新しいキューを生成し、スキーマを適用する。
func New(db *sql.DB) (*Queue, error) {
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("キューの初期化に失敗: %w", err)
	}
	return &Queue{db: db, leaseTimeout: defaultLeaseTimeout}, nil
}

// SetLeaseTimeout はリースの有効期限を変更する。
// ジョブの許容実行時間より長く設定すること。
func (q *Queue) SetLeaseTimeout(d time.Duration) {
	if d > 0 {
		q.leaseTimeout = d
	}
}

// Enqueue はメッセージをキューへ永続化する。
// トランスポートの受付はここで完了し、ジョブの完了は待たない。
func (q *Queue) Enqueue(ctx context.Context, env *message.Envelope) error {
	now := time.Now().UTC().Format(timeFormat)
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO queue_messages (id, msg_type, payload, status, attempts, next_attempt_at, enqueued_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		env.ID, string(env.Type), string(env.Payload), string(StatusEnqueued),
		now, env.EnqueuedAt.UTC().Format(timeFormat), now,
	)
	if err != nil {
		return fmt.Errorf("メッセージの永続化に失敗: %w", err)
	}
	return nil
}

// Lease は処理可能なメッセージを1件リースし、running状態に遷移させる。
// 試行回数はリース時にインクリメントされる。
// リース有効期限を超えて放置されたrunningメッセージも対象に含める。
// ワーカーがACKせずに死んだ場合、そのメッセージは期限切れ後に
// 別のワーカーへ再リースされる（at-least-once配送）。
// 処理可能なメッセージが無い場合はErrEmptyを返す。
func (q *Queue) Lease(ctx context.Context) (*Leased, error) {
	now := time.Now().UTC()
	nowStr := now.Format(timeFormat)
	staleBefore := now.Add(-q.leaseTimeout).Format(timeFormat)

	row := q.db.QueryRowContext(ctx, `
		UPDATE queue_messages
		SET status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = (
			SELECT id FROM queue_messages
			WHERE (status = ? AND next_attempt_at <= ?)
			   OR (status = ? AND updated_at <= ?)
			ORDER BY enqueued_at, id
			LIMIT 1
		)
		RETURNING id, msg_type, payload, attempts, enqueued_at`,
		string(StatusRunning), nowStr,
		string(StatusEnqueued), nowStr,
		string(StatusRunning), staleBefore,
	)

	var (
		id, msgType, payload, enqueuedAt string
		attempts                         int
	)
	if err := row.Scan(&id, &msgType, &payload, &attempts, &enqueuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("メッセージのリースに失敗: %w", err)
	}

	enqueued, err := time.Parse(timeFormat, enqueuedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueued_atの解析に失敗: %w", err)
	}

	return &Leased{
		Envelope: message.Envelope{
			ID:         id,
			Type:       message.Type(msgType),
			Payload:    json.RawMessage(payload),
			EnqueuedAt: enqueued,
		},
		Attempts: attempts,
	}, nil
}

// Succeed はリース中のメッセージを成功として記録する。
func (q *Queue) Succeed(ctx context.Context, id string) error {
	return q.setStatus(ctx, id, StatusSucceeded, "")
}

// Retry はリース中のメッセージを再投入する。
// delay経過後に再びリース可能になる。
func (q *Queue) Retry(ctx context.Context, id string, delay time.Duration, cause string) error {
	now := time.Now().UTC()
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue_messages
		SET status = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		string(StatusEnqueued),
		now.Add(delay).Format(timeFormat),
		cause,
		now.Format(timeFormat),
		id,
	)
	if err != nil {
		return fmt.Errorf("メッセージの再投入に失敗: %w", err)
	}
	return nil
}

// FailTerminal はメッセージを恒久的な失敗として記録する。
// メッセージは破棄されず、調査のために保持される。
func (q *Queue) FailTerminal(ctx context.Context, id, cause string) error {
	return q.setStatus(ctx, id, StatusFailed, cause)
}

// MarkUnroutable はハンドラ未登録のメッセージを記録する。
// 設定エラーであり、メッセージは破棄せず保持する。
func (q *Queue) MarkUnroutable(ctx context.Context, id, cause string) error {
	return q.setStatus(ctx, id, StatusUnroutable, cause)
}

// setStatus はメッセージの状態と失敗理由を更新する共通処理。
func (q *Queue) setStatus(ctx context.Context, id string, status Status, cause string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue_messages
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		string(status), cause, time.Now().UTC().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("メッセージ状態の更新に失敗: %w", err)
	}
	return nil
}

// CountByStatus は指定した状態のメッセージ数を返す。
// 運用時の滞留監視とテストで使用する。
func (q *Queue) CountByStatus(ctx context.Context, status Status) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_messages WHERE status = ?`, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("メッセージ数の取得に失敗: %w", err)
	}
	return count, nil
}
