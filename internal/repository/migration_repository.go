package repository

import (
	"context"
	"log/slog"
	"time"

	"tenant-key-service/internal/domain"

	"gorm.io/gorm"
)

// schemaMigration はschema_migrationsテーブルの1行。
type schemaMigration struct {
	Version   string    `gorm:"column:version;primaryKey;type:varchar(32)"`
	Name      string    `gorm:"column:name;type:varchar(255);not null"`
	Checksum  string    `gorm:"column:checksum;type:varchar(64);not null"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
}

func (schemaMigration) TableName() string {
	return "schema_migrations"
}

// MigrationRepository は適用済みマイグレーションの履歴を保持する。
type MigrationRepository struct {
	db *gorm.DB
}

// NewMigrationRepository は新しいMigrationRepositoryを生成する。
func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// EnsureTable は履歴テーブルを作成する。既存の場合は不足カラムのみ追加される。
func (r *MigrationRepository) EnsureTable(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&schemaMigration{}); err != nil {
		slog.ErrorContext(ctx, "failed to ensure schema_migrations table",
			"operation", "ensure_table",
			"error", err,
		)
		return err
	}
	return nil
}

// FindAllApplied は適用済みマイグレーションをバージョン順に返す。
func (r *MigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.Migration, error) {
	var rows []schemaMigration
	if err := r.db.WithContext(ctx).Order("version ASC").Find(&rows).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list applied migrations",
			"operation", "find_all_applied",
			"error", err,
		)
		return nil, err
	}

	migrations := make([]*domain.Migration, 0, len(rows))
	for _, row := range rows {
		appliedAt := row.AppliedAt
		migrations = append(migrations, &domain.Migration{
			Version:   row.Version,
			Name:      row.Name,
			Checksum:  row.Checksum,
			AppliedAt: &appliedAt,
			Status:    domain.MigrationStatusApplied,
		})
	}
	return migrations, nil
}

// RecordMigration は適用履歴を記録する。txがnilの場合はリポジトリの接続を使う。
func (r *MigrationRepository) RecordMigration(ctx context.Context, tx *gorm.DB, migration *domain.Migration) error {
	if tx == nil {
		tx = r.db
	}
	row := &schemaMigration{
		Version:   migration.Version,
		Name:      migration.Name,
		Checksum:  migration.Checksum,
		AppliedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		slog.ErrorContext(ctx, "failed to record migration",
			"operation", "record_migration",
			"version", migration.Version,
			"error", err,
		)
		return err
	}
	migration.AppliedAt = &row.AppliedAt
	return nil
}
