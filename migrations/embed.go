// Package migrations はトークン登録テーブルのスキーマ定義をバイナリに埋め込む。
// ディレクトリ名はgormのダイアレクト名（mysql, sqlite）に対応する。
package migrations

import "embed"

// FS はダイアレクトごとのマイグレーションファイル。
//
//go:embed mysql/*.sql sqlite/*.sql
var FS embed.FS
