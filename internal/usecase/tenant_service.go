package usecase

import (
	"context"
	"fmt"
	"regexp"

	"tenant-key-service/internal/domain"
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// TokenRepository はテナントトークンのデータアクセスのインターフェース。
type TokenRepository interface {
	ExistsByTenantID(ctx context.Context, tenantID string) (bool, error)
	Create(ctx context.Context, token *domain.TenantToken) error
	FindByTenantID(ctx context.Context, tenantID string) (*domain.TenantToken, error)
}

// TenantService はテナント単位でトークンを払い出し、保存済みトークンで暗号化/復号する。
type TenantService struct {
	repo TokenRepository
	keys KeyService
}

// NewTenantService は新しいTenantServiceを生成する。
func NewTenantService(repo TokenRepository, keys KeyService) *TenantService {
	return &TenantService{
		repo: repo,
		keys: keys,
	}
}

// Provision は指定されたテナントに新しいトークンを払い出して保存する。
func (s *TenantService) Provision(ctx context.Context, tenantID string) (*domain.TenantToken, error) {
	if err := validateTenantID(tenantID); err != nil {
		return nil, err
	}

	// 既存チェック
	exists, err := s.repo.ExistsByTenantID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("checking existing token: %w", err)
	}
	if exists {
		return nil, domain.ErrTokenAlreadyExists
	}

	token, err := s.keys.GenTenantToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating tenant token: %w", err)
	}

	record := &domain.TenantToken{
		TenantID: tenantID,
		Token:    token,
		Backend:  s.keys.Backend(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("creating token: %w", err)
	}
	return record, nil
}

// Encrypt はテナントのトークンで平文を暗号化する。
func (s *TenantService) Encrypt(ctx context.Context, tenantID, plaintext string) (string, error) {
	record, err := s.find(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return s.keys.TenantEncrypt(ctx, plaintext, record.Token)
}

// Decrypt はテナントのトークンで暗号文を復号する。
func (s *TenantService) Decrypt(ctx context.Context, tenantID, ciphertext string) (string, error) {
	record, err := s.find(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return s.keys.TenantDecrypt(ctx, ciphertext, record.Token)
}

func (s *TenantService) find(ctx context.Context, tenantID string) (*domain.TenantToken, error) {
	if err := validateTenantID(tenantID); err != nil {
		return nil, err
	}
	record, err := s.repo.FindByTenantID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("finding token: %w", err)
	}
	if record == nil {
		return nil, domain.ErrTenantNotFound
	}
	// 別バックエンドで払い出したトークンは解決できない
	if record.Backend != s.keys.Backend() {
		return nil, fmt.Errorf("%w: token issued by %s backend", domain.ErrInvalidToken, record.Backend)
	}
	return record, nil
}

func validateTenantID(tenantID string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTenantID, tenantID)
	}
	return nil
}
