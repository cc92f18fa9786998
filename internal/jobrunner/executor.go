package jobrunner

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/claimshub/claimshub/internal/queue"
	"github.com/claimshub/claimshub/pkg/notify"
)

// Notifier はジョブ成功時の通知登録先を抽象化する。
// 本番では通知サービスへのHTTPクライアント（notify.Client）を使用する。
type Notifier interface {
	Publish(ctx context.Context, draft notify.Draft) error
}

// Config はExecutorの動作設定。
type Config struct {
	// Workers は並行してメッセージを処理するワーカー数。
	Workers int
	// MaxAttempts は一時的な失敗に対する最大試行回数。
	MaxAttempts int
	// JobTimeout は1回のジョブ実行に許容するタイムアウト。
	// 超過した場合は一時的な失敗として扱い、リトライポリシーに従う。
	JobTimeout time.Duration
	// PollInterval はキューが空のときのポーリング間隔。
	PollInterval time.Duration
	// BackoffBase はリトライ遅延の基準値。試行回数に応じて指数的に増加する。
	BackoffBase time.Duration
}

// Executor はキューからメッセージをリースしてジョブを実行するワーカー群。
type Executor struct {
	// queue はメッセージのリース元となる永続キュー。
	queue *queue.Queue
	// router はメッセージタイプからハンドラを引き当てるルーター。
	router *Router
	// notifier はジョブ成功時の通知登録先。
	notifier Notifier
	// config は動作設定。
	config Config
}

// NewExecutor は新しいExecutorを生成する。
// 設定のゼロ値にはローカル開発向けのデフォルトを適用する。
func NewExecutor(q *queue.Queue, router *Router, notifier Notifier, config Config) *Executor {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	return &Executor{
		queue:    q,
		router:   router,
		notifier: notifier,
		config:   config,
	}
}

// Run はワーカー群を起動し、コンテキストがキャンセルされるまで処理を続ける。
func (e *Executor) Run(ctx context.Context) {
	log.Printf("[Executor] ワーカーを起動します: workers=%d, max_attempts=%d", e.config.Workers, e.config.MaxAttempts)

	var wg sync.WaitGroup
	for i := 0; i < e.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.workerLoop(ctx)
		}()
	}
	wg.Wait()
}

// workerLoop は1ワーカーのポーリングループ。
func (e *Executor) workerLoop(ctx context.Context) {
	for {
		processed, err := e.ProcessOne(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Executor] メッセージ処理エラー: %v", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.config.PollInterval):
		}
	}
}

// ProcessOne はキューからメッセージを1件リースして処理する。
// 処理対象が存在した場合はtrueを返す。
func (e *Executor) ProcessOne(ctx context.Context) (bool, error) {
	leased, err := e.queue.Lease(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrEmpty) {
			return false, nil
		}
		return false, err
	}

	e.execute(ctx, leased)
	return true, nil
}

// execute は1件のメッセージに対してジョブを実行し、結果に応じて状態を遷移させる。
func (e *Executor) execute(ctx context.Context, leased *queue.Leased) {
	env := &leased.Envelope

	jobCtx, cancel := context.WithTimeout(ctx, e.config.JobTimeout)
	draft, err := e.router.Dispatch(jobCtx, env)
	cancel()

	switch {
	case err == nil:
		// ジョブ成功。通知の登録失敗はジョブ失敗とは区別し、
		// 配信ギャップとしてログに残すだけに留める。
		// クライアントは再接続時のページ取得で追い付ける。
		if draft != nil {
			if pubErr := e.notifier.Publish(ctx, *draft); pubErr != nil {
				log.Printf("[Executor] 配信ギャップ: 通知の登録に失敗: message_id=%s, error=%v", env.ID, pubErr)
			}
		}
		if sErr := e.queue.Succeed(ctx, env.ID); sErr != nil {
			log.Printf("[Executor] 成功状態の記録に失敗: message_id=%s, error=%v", env.ID, sErr)
		}

	case errors.Is(err, ErrNoHandler):
		// 設定エラー。メッセージは破棄せず保持する。
		log.Printf("[Executor] 設定エラー: ハンドラ未登録: message_id=%s, type=%s", env.ID, env.Type)
		if mErr := e.queue.MarkUnroutable(ctx, env.ID, err.Error()); mErr != nil {
			log.Printf("[Executor] ルーティング不能状態の記録に失敗: message_id=%s, error=%v", env.ID, mErr)
		}

	case IsTransient(err) && leased.Attempts < e.config.MaxAttempts:
		delay := e.backoff(leased.Attempts)
		log.Printf("[Executor] 一時的な失敗、再試行します: message_id=%s, attempt=%d/%d, delay=%v, error=%v",
			env.ID, leased.Attempts, e.config.MaxAttempts, delay, err)
		if rErr := e.queue.Retry(ctx, env.ID, delay, err.Error()); rErr != nil {
			log.Printf("[Executor] 再投入に失敗: message_id=%s, error=%v", env.ID, rErr)
		}

	default:
		// 恒久的な失敗、または試行回数の上限に到達。
		log.Printf("[Executor] 恒久的な失敗: message_id=%s, attempts=%d, error=%v", env.ID, leased.Attempts, err)
		if fErr := e.queue.FailTerminal(ctx, env.ID, err.Error()); fErr != nil {
			log.Printf("[Executor] 失敗状態の記録に失敗: message_id=%s, error=%v", env.ID, fErr)
		}
	}
}

// backoff は試行回数に応じた指数バックオフの遅延を返す。
func (e *Executor) backoff(attempts int) time.Duration {
	delay := e.config.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}
