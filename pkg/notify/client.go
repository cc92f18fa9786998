package notify

import (
	"context"
	"fmt"

	"github.com/claimshub/claimshub/pkg/httpclient"
)

// Client は通知サービスへ通知を登録するクライアント。
type Client struct {
	// httpClient は通知サービスへのHTTPクライアント。
	httpClient *httpclient.Client
}

// NewClient は新しい通知クライアントを生成する。
// baseURLには通知サービスのベースURLを指定する。
func NewClient(baseURL string) *Client {
	return &Client{httpClient: httpclient.New(baseURL)}
}

// Publish は通知サービスの内部APIへ通知を登録する。
// 登録に成功すると通知は永続化され、接続中のクライアントへプッシュ配信される。
func (c *Client) Publish(ctx context.Context, draft Draft) error {
	if err := c.httpClient.PostJSON(ctx, "/api/v1/internal/notifications", draft, nil); err != nil {
		return fmt.Errorf("通知の登録に失敗: %w", err)
	}
	return nil
}
