// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tenant-key-service/internal/domain"
)

// TenantTokenModel はgorm用のモデル定義。
type TenantTokenModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	TenantID  string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_tenant_id"`
	Token     string    `gorm:"type:text;not null"`
	Backend   string    `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (TenantTokenModel) TableName() string {
	return "tenant_tokens"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *TenantTokenModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *TenantTokenModel) toDomain() *domain.TenantToken {
	return &domain.TenantToken{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Token:     m.Token,
		Backend:   domain.Backend(m.Backend),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// TokenRepository はテナントトークンのデータアクセスを提供する。
type TokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository は新しいTokenRepositoryを生成する。
func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// ExistsByTenantID は指定されたテナントにトークンが存在するか確認する。
func (r *TokenRepository) ExistsByTenantID(ctx context.Context, tenantID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&TenantTokenModel{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count tokens by tenant_id",
			"operation", "exists_by_tenant_id",
			"tenant_id", tenantID,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// Create は新しいテナントトークンを保存する。
// テナントに既にトークンがある場合はErrTokenAlreadyExistsを返す。
func (r *TokenRepository) Create(ctx context.Context, token *domain.TenantToken) error {
	model := &TenantTokenModel{
		ID:       token.ID,
		TenantID: token.TenantID,
		Token:    token.Token,
		Backend:  string(token.Backend),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		// 同時払い出しで既存チェックをすり抜けた場合
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrTokenAlreadyExists
		}
		slog.ErrorContext(ctx, "failed to create token",
			"operation", "create",
			"tenant_id", token.TenantID,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	token.ID = model.ID
	token.CreatedAt = model.CreatedAt
	token.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByTenantID は指定されたテナントのトークンを取得する。存在しない場合はnilを返す。
func (r *TokenRepository) FindByTenantID(ctx context.Context, tenantID string) (*domain.TenantToken, error) {
	var model TenantTokenModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find token",
			"operation", "find_by_tenant_id",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}
