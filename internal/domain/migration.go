package domain

import "time"

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending  MigrationStatus = "pending"
	MigrationStatusApplied  MigrationStatus = "applied"
	MigrationStatusModified MigrationStatus = "modified" // 適用後にファイルが変更された
)

// Migration はデータベースマイグレーションを表すドメインモデル
type Migration struct {
	Version   string          // マイグレーションバージョン（例: "001", "002"）
	Name      string          // マイグレーション名（ファイル名から抽出）
	Path      string          // マイグレーションFS内のパス
	Checksum  string          // SQL本文のSHA-256（hex）
	AppliedAt *time.Time      // 適用日時（未適用の場合はnil）
	Status    MigrationStatus // 適用状態
}
