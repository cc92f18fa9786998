package jobrunner

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"net/smtp"
	"os"
	"path/filepath"
	"time"

	"github.com/claimshub/claimshub/pkg/message"
	"github.com/claimshub/claimshub/pkg/notify"
)

// ZipExportJob は保険請求に紐づく書類をZIPにまとめるジョブ。
// 書類は documentDir/<claim_id>/ 以下に保存されている前提。
type ZipExportJob struct {
	// documentDir はエクスポート対象の書類が保存されているディレクトリ。
	documentDir string
	// exportDir はZIPファイルの出力先ディレクトリ。
	exportDir string
	// effects は副作用の冪等性記録。
	effects *EffectRecorder
}

// NewZipExportJob は新しいZipExportJobを生成する。
func NewZipExportJob(documentDir, exportDir string, effects *EffectRecorder) *ZipExportJob {
	return &ZipExportJob{
		documentDir: documentDir,
		exportDir:   exportDir,
		effects:     effects,
	}
}

// Handle はZIPエクスポートを実行し、要求元ユーザーへの個人通知を返す。
// 冪等キーは請求ID・エクスポート種別・要求日時の分単位バケットから構成する。
// タイムアウト後の再実行で同じZIPを二重に書き出さない。
func (j *ZipExportJob) Handle(ctx context.Context, env *message.Envelope) (*notify.Draft, error) {
	data, err := message.DecodePayload[message.ZipExportRequestedData](env)
	if err != nil {
		return nil, err
	}
	if data.ClaimID == "" {
		return nil, fmt.Errorf("請求IDが指定されていません")
	}

	bucket := data.RequestedAt.UTC().Truncate(time.Minute).Unix()
	key := fmt.Sprintf("zip-export:%s:%d", data.ClaimID, bucket)
	zipName := fmt.Sprintf("claim-%s-%d.zip", data.ClaimID, bucket)

	done, err := j.effects.Done(ctx, key)
	if err != nil {
		return nil, Transient(err)
	}
	if !done {
		claimDir := filepath.Join(j.documentDir, data.ClaimID)
		if _, err := os.Stat(claimDir); err != nil {
			// 参照先の書類ディレクトリが存在しない場合は恒久的な失敗
			return nil, fmt.Errorf("請求の書類ディレクトリが存在しません: claim_id=%s: %w", data.ClaimID, err)
		}

		if err := j.writeZip(ctx, claimDir, zipName, data.FileNames); err != nil {
			return nil, err
		}
		if err := j.effects.Record(ctx, key); err != nil {
			return nil, Transient(err)
		}
	} else {
		log.Printf("[ZipExport] 適用済みの副作用をスキップ: key=%s", key)
	}

	return &notify.Draft{
		Type:        notify.TypePrivateMessage,
		Source:      "jobrunner",
		Target:      data.RequestedBy,
		MessageType: "ZipExportFinished",
		Message: map[string]any{
			"claim_id":   data.ClaimID,
			"file_name":  zipName,
			"file_count": len(data.FileNames),
		},
	}, nil
}

// writeZip は指定された書類をZIPファイルへ書き出す。
func (j *ZipExportJob) writeZip(ctx context.Context, claimDir, zipName string, fileNames []string) error {
	if err := os.MkdirAll(j.exportDir, 0o755); err != nil {
		return Transient(fmt.Errorf("出力先ディレクトリの作成に失敗: %w", err))
	}

	outPath := filepath.Join(j.exportDir, zipName)
	out, err := os.Create(outPath)
	if err != nil {
		return Transient(fmt.Errorf("ZIPファイルの作成に失敗: %w", err))
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, name := range fileNames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addZipEntry(zw, claimDir, name); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return Transient(fmt.Errorf("ZIPファイルの書き出しに失敗: %w", err))
	}
	return nil
}

// addZipEntry は1つの書類をZIPへ追加する。
func addZipEntry(zw *zip.Writer, claimDir, name string) error {
	src, err := os.Open(filepath.Join(claimDir, filepath.Base(name)))
	if err != nil {
		// 書類一覧に含まれるファイルが存在しない場合は入力不正
		return fmt.Errorf("書類ファイルが存在しません: %s: %w", name, err)
	}
	defer src.Close()

	entry, err := zw.Create(filepath.Base(name))
	if err != nil {
		return Transient(fmt.Errorf("ZIPエントリの作成に失敗: %w", err))
	}
	if _, err := io.Copy(entry, src); err != nil {
		return Transient(fmt.Errorf("書類のコピーに失敗: %w", err))
	}
	return nil
}

// ReceiptEmailJob は請求受付の受領メールを送信するジョブ。
type ReceiptEmailJob struct {
	// smtpAddr はSMTPサーバーのアドレス（host:port）。
	// 空の場合はログ出力のみのドライランになる。
	smtpAddr string
	// from は差出人アドレス。
	from string
	// effects は副作用の冪等性記録。
	effects *EffectRecorder
	// sendMail はメール送信処理。テストで差し替えられるように関数として持つ。
	sendMail func(addr, from, to string, body []byte) error
}

// NewReceiptEmailJob は新しいReceiptEmailJobを生成する。
func NewReceiptEmailJob(smtpAddr, from string, effects *EffectRecorder) *ReceiptEmailJob {
	return &ReceiptEmailJob{
		smtpAddr: smtpAddr,
		from:     from,
		effects:  effects,
		sendMail: func(addr, from, to string, body []byte) error {
			return smtp.SendMail(addr, nil, from, []string{to}, body)
		},
	}
}

// Handle は受領メールを送信し、店舗スタッフグループへの通知を返す。
// 冪等キーは請求IDから構成する。同じ請求への受領メールは一度だけ送信する。
func (j *ReceiptEmailJob) Handle(ctx context.Context, env *message.Envelope) (*notify.Draft, error) {
	data, err := message.DecodePayload[message.ReceiptEmailRequestedData](env)
	if err != nil {
		return nil, err
	}
	if data.ClaimID == "" || data.Email == "" {
		return nil, fmt.Errorf("請求IDまたは宛先アドレスが指定されていません")
	}

	key := fmt.Sprintf("receipt-email:%s", data.ClaimID)
	done, err := j.effects.Done(ctx, key)
	if err != nil {
		return nil, Transient(err)
	}
	if !done {
		if err := j.send(data); err != nil {
			return nil, err
		}
		if err := j.effects.Record(ctx, key); err != nil {
			return nil, Transient(err)
		}
	} else {
		log.Printf("[ReceiptEmail] 適用済みの副作用をスキップ: key=%s", key)
	}

	return &notify.Draft{
		Type:        notify.TypeGroupMessage,
		Source:      "jobrunner",
		Target:      "store_staff",
		MessageType: "ReceiptEmailSent",
		Message: map[string]any{
			"claim_id": data.ClaimID,
			"email":    data.Email,
		},
	}, nil
}

// send は受領メールを組み立てて送信する。
func (j *ReceiptEmailJob) send(data *message.ReceiptEmailRequestedData) error {
	if j.smtpAddr == "" {
		log.Printf("[ReceiptEmail] ドライラン: to=%s, claim_id=%s", data.Email, data.ClaimID)
		return nil
	}

	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Receipt Confirmation\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s 様\r\n\r\n保険請求（%s）の書類を受領しました。\r\n",
		j.from, data.Email, data.ClaimantName, data.ClaimID,
	)
	if err := j.sendMail(j.smtpAddr, j.from, data.Email, []byte(body)); err != nil {
		// SMTPサーバーの不調は再試行で回復しうる
		return Transient(fmt.Errorf("受領メールの送信に失敗: %w", err))
	}
	return nil
}

// MonthlyReportJob は保険会社ごとの月次レポートを生成するジョブ。
type MonthlyReportJob struct {
	// exportDir はレポートファイルの出力先ディレクトリ。
	exportDir string
	// effects は副作用の冪等性記録。
	effects *EffectRecorder
}

// NewMonthlyReportJob は新しいMonthlyReportJobを生成する。
func NewMonthlyReportJob(exportDir string, effects *EffectRecorder) *MonthlyReportJob {
	return &MonthlyReportJob{exportDir: exportDir, effects: effects}
}

// Handle は月次レポートを生成し、全体通知を返す。
// 冪等キーは会社ID・対象年月から構成する。
func (j *MonthlyReportJob) Handle(ctx context.Context, env *message.Envelope) (*notify.Draft, error) {
	data, err := message.DecodePayload[message.MonthlyReportRequestedData](env)
	if err != nil {
		return nil, err
	}
	if data.CompanyID == "" || data.Month < 1 || data.Month > 12 {
		return nil, fmt.Errorf("会社IDまたは対象年月が不正です")
	}

	key := fmt.Sprintf("monthly-report:%s:%04d-%02d", data.CompanyID, data.Year, data.Month)
	reportName := fmt.Sprintf("report-%s-%04d-%02d.txt", data.CompanyID, data.Year, data.Month)

	done, err := j.effects.Done(ctx, key)
	if err != nil {
		return nil, Transient(err)
	}
	if !done {
		if err := os.MkdirAll(j.exportDir, 0o755); err != nil {
			return nil, Transient(fmt.Errorf("出力先ディレクトリの作成に失敗: %w", err))
		}
		content := fmt.Sprintf("月次レポート\n会社ID: %s\n対象: %04d年%02d月\n生成日時: %s\n",
			data.CompanyID, data.Year, data.Month, time.Now().UTC().Format(time.RFC3339))
		if err := os.WriteFile(filepath.Join(j.exportDir, reportName), []byte(content), 0o644); err != nil {
			return nil, Transient(fmt.Errorf("レポートの書き出しに失敗: %w", err))
		}
		if err := j.effects.Record(ctx, key); err != nil {
			return nil, Transient(err)
		}
	} else {
		log.Printf("[MonthlyReport] 適用済みの副作用をスキップ: key=%s", key)
	}

	return &notify.Draft{
		Type:        notify.TypeBroadcast,
		Source:      "jobrunner",
		MessageType: "MonthlyReportReady",
		Message: map[string]any{
			"company_id": data.CompanyID,
			"file_name":  reportName,
			"year":       data.Year,
			"month":      data.Month,
		},
	}, nil
}

// RegisterJobs は全ジョブをルーターへ登録する。
func RegisterJobs(router *Router, zipExport *ZipExportJob, receiptEmail *ReceiptEmailJob, monthlyReport *MonthlyReportJob) {
	router.Register(message.TypeZipExportRequested, zipExport.Handle)
	router.Register(message.TypeReceiptEmailRequested, receiptEmail.Handle)
	router.Register(message.TypeMonthlyReportRequested, monthlyReport.Handle)
}
