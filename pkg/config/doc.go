// Package config は各サービスの設定を環境変数から読み込む。
// viperによる環境変数バインディングとデフォルト値の解決を提供する。
package config
