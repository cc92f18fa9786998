// ジョブ実行サービスのエントリポイント。
// キューからメッセージをリースし、ZIPエクスポート・受領メール・
// 月次レポートなどのジョブを実行して結果を通知サービスへ登録する。
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/claimshub/claimshub/internal/jobrunner"
	"github.com/claimshub/claimshub/internal/queue"
	"github.com/claimshub/claimshub/pkg/config"
	"github.com/claimshub/claimshub/pkg/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.JobRunner.DBPath))
	if err != nil {
		log.Fatalf("データベース接続に失敗: %v", err)
	}
	defer db.Close()

	q, err := queue.New(db)
	if err != nil {
		log.Fatalf("キューの初期化に失敗: %v", err)
	}
	q.SetLeaseTimeout(cfg.JobRunner.LeaseTimeout)

	effects, err := jobrunner.NewEffectRecorder(db)
	if err != nil {
		log.Fatalf("冪等性記録の初期化に失敗: %v", err)
	}

	router := jobrunner.NewRouter()
	jobrunner.RegisterJobs(router,
		jobrunner.NewZipExportJob(cfg.JobRunner.DocumentDir, cfg.JobRunner.ExportDir, effects),
		jobrunner.NewReceiptEmailJob(cfg.JobRunner.SMTPAddr, cfg.JobRunner.SMTPFrom, effects),
		jobrunner.NewMonthlyReportJob(cfg.JobRunner.ExportDir, effects),
	)

	executor := jobrunner.NewExecutor(q, router, notify.NewClient(cfg.JobRunner.NotificationURL), jobrunner.Config{
		Workers:      cfg.JobRunner.Workers,
		MaxAttempts:  cfg.JobRunner.MaxAttempts,
		JobTimeout:   cfg.JobRunner.JobTimeout,
		PollInterval: cfg.JobRunner.PollInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("ジョブ実行サービスを起動します: db=%s", cfg.JobRunner.DBPath)
	executor.Run(ctx)
	log.Print("ジョブ実行サービスを停止しました")
}
