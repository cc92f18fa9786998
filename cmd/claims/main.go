// 請求受付サービスのエントリポイント。
// 保険請求を受け付け、受領メールや書類エクスポートなどの
// 後続処理をメッセージとしてキューへ投入する。
package main

import (
	"log"

	"github.com/claimshub/claimshub/internal/claims"
	"github.com/claimshub/claimshub/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	server, err := claims.NewServer(cfg.Claims.Port, cfg.Claims.DBPath, cfg.Claims.QueueDBPath, cfg.Claims.JWTSecret, cfg.Claims.AllowedOrigins)
	if err != nil {
		log.Fatalf("請求受付サーバーの初期化に失敗: %v", err)
	}

	log.Printf("請求受付サービスを起動します: :%s", cfg.Claims.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("請求受付サービスの起動に失敗: %v", err)
	}
}
