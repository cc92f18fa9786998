package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Notification は通知サービスの設定。
type Notification struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `mapstructure:"notification_port"`
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string `mapstructure:"notification_db_path"`
	// JWTSecret はJWTトークンの署名・検証に使用する共有鍵。
	JWTSecret string `mapstructure:"jwt_secret"`
	// AllowedOrigins はCORSで許可するオリジンの一覧。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// JobRunner はバックグラウンドジョブ実行サービスの設定。
type JobRunner struct {
	// DBPath はキュー・冪等性記録用SQLiteデータベースファイルのパス。
	DBPath string `mapstructure:"jobrunner_db_path"`
	// NotificationURL は通知サービスのベースURL。
	NotificationURL string `mapstructure:"notification_url"`
	// Workers は並行してメッセージを処理するワーカー数。
	Workers int `mapstructure:"jobrunner_workers"`
	// MaxAttempts は一時的な失敗に対する最大試行回数。
	MaxAttempts int `mapstructure:"jobrunner_max_attempts"`
	// JobTimeout は1回のジョブ実行に許容するタイムアウト。
	JobTimeout time.Duration `mapstructure:"jobrunner_job_timeout"`
	// PollInterval はキューをポーリングする間隔。
	PollInterval time.Duration `mapstructure:"jobrunner_poll_interval"`
	// LeaseTimeout はリースの有効期限。
	// この時間を超えてACKされないメッセージはワーカーのクラッシュと
	// みなされ、別のワーカーへ再リースされる。JobTimeoutより長くすること。
	LeaseTimeout time.Duration `mapstructure:"jobrunner_lease_timeout"`
	// ExportDir はZIPエクスポートの出力先ディレクトリ。
	ExportDir string `mapstructure:"export_dir"`
	// DocumentDir はエクスポート対象の書類が保存されているディレクトリ。
	DocumentDir string `mapstructure:"document_dir"`
	// SMTPAddr は受領メール送信に使用するSMTPサーバーのアドレス（host:port）。
	// 空の場合、メール送信はログ出力のみのドライランになる。
	SMTPAddr string `mapstructure:"smtp_addr"`
	// SMTPFrom は受領メールの差出人アドレス。
	SMTPFrom string `mapstructure:"smtp_from"`
}

// Claims は請求受付サービスの設定。
type Claims struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `mapstructure:"claims_port"`
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string `mapstructure:"claims_db_path"`
	// QueueDBPath はメッセージキュー用SQLiteデータベースファイルのパス。
	// jobrunnerと同じファイルを共有する。
	QueueDBPath string `mapstructure:"jobrunner_db_path"`
	// JWTSecret はJWTトークンの署名・検証に使用する共有鍵。
	JWTSecret string `mapstructure:"jwt_secret"`
	// AllowedOrigins はCORSで許可するオリジンの一覧。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Config はプラットフォーム全体の設定。
type Config struct {
	Notification Notification `mapstructure:",squash"`
	JobRunner    JobRunner    `mapstructure:",squash"`
	Claims       Claims       `mapstructure:",squash"`
}

// Load は環境変数から設定を読み込む。
// 未設定の項目にはローカル開発向けのデフォルト値を適用する。
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 未設定のキーに適用するデフォルト値
	v.SetDefault("notification_port", "8086")
	v.SetDefault("notification_db_path", "/data/notification.db")
	v.SetDefault("jwt_secret", "dev-secret-key")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("jobrunner_db_path", "/data/jobrunner.db")
	v.SetDefault("notification_url", "http://localhost:8086")
	v.SetDefault("jobrunner_workers", 4)
	v.SetDefault("jobrunner_max_attempts", 3)
	v.SetDefault("jobrunner_job_timeout", 30*time.Second)
	v.SetDefault("jobrunner_poll_interval", time.Second)
	v.SetDefault("jobrunner_lease_timeout", 5*time.Minute)
	v.SetDefault("export_dir", "/data/exports")
	v.SetDefault("document_dir", "/data/documents")
	v.SetDefault("smtp_addr", "")
	v.SetDefault("smtp_from", "noreply@claimshub.example")
	v.SetDefault("claims_port", "8081")
	v.SetDefault("claims_db_path", "/data/claims.db")

	// AutomaticEnvだけではUnmarshalが環境変数を拾わないため、
	// デフォルトで宣言した全キーを明示的にバインドする。
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("環境変数のバインドに失敗: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}
	return &cfg, nil
}
