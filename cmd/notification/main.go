// 通知サービスのエントリポイント。
// ジョブ実行基盤などから発行された通知を保存し、
// SSEで接続中のクライアントへリアルタイム配信する。
package main

import (
	"log"

	"github.com/claimshub/claimshub/internal/notification"
	"github.com/claimshub/claimshub/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	server, err := notification.NewServer(cfg.Notification.Port, cfg.Notification.DBPath, cfg.Notification.JWTSecret, cfg.Notification.AllowedOrigins)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知サービスを起動します: :%s", cfg.Notification.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}
