package jobrunner

import (
	"context"
	"fmt"

	"github.com/claimshub/claimshub/pkg/message"
	"github.com/claimshub/claimshub/pkg/notify"
)

// HandlerFunc はメッセージを処理するジョブのエントリポイント。
// 成功時は0個（nil）または1個の通知ドラフトを返す。
type HandlerFunc func(ctx context.Context, env *message.Envelope) (*notify.Draft, error)

// Router はメッセージタイプとハンドラの対応を管理する。
// 1つのタイプに対して登録できるハンドラは1つだけ。
type Router struct {
	// handlers はメッセージタイプからハンドラへの対応表。
	handlers map[message.Type]HandlerFunc
}

// NewRouter は新しいルーターを生成する。
func NewRouter() *Router {
	return &Router{handlers: make(map[message.Type]HandlerFunc)}
}

// Register はメッセージタイプに対するハンドラを登録する。
// 同じタイプへの再登録は上書きになる。
func (r *Router) Register(msgType message.Type, handler HandlerFunc) {
	r.handlers[msgType] = handler
}

// Dispatch はメッセージタイプに対応するハンドラを引き当てて実行する。
// ハンドラ未登録の場合はErrNoHandlerを返す。
func (r *Router) Dispatch(ctx context.Context, env *message.Envelope) (*notify.Draft, error) {
	handler, ok := r.handlers[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: type=%s", ErrNoHandler, env.Type)
	}
	return handler(ctx, env)
}
