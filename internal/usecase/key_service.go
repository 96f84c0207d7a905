// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/rand"
	"fmt"

	"tenant-key-service/config"
	"tenant-key-service/internal/domain"
)

const keySize = 32 // AES-256 = 256 bits = 32 bytes

// KeyProvider はリモート鍵管理システムのインターフェース。
type KeyProvider interface {
	GenerateDataKey(ctx context.Context, ref domain.MasterKeyRef, spec domain.KeySpec) (*domain.DataKey, error)
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}

// KeyService はテナントトークンの発行、テナントデータの暗号化/復号、
// セッション資格情報の署名/検証を提供する。
type KeyService interface {
	GenTenantToken(ctx context.Context) (string, error)
	TenantEncrypt(ctx context.Context, plaintext, token string) (string, error)
	TenantDecrypt(ctx context.Context, ciphertext, token string) (string, error)
	SignCredential(ctx context.Context, payload domain.Payload) (string, error)
	VerifyCredential(ctx context.Context, credential string) (domain.Payload, error)
	Backend() domain.Backend
}

// NewKeyService は設定のKeyBackendに応じた実装を生成する。起動時に一度だけ選択する。
// providerはremoteバックエンドとラップ済みセッション秘密鍵でのみ使われる。
func NewKeyService(cfg *config.Config, provider KeyProvider) (KeyService, error) {
	session, err := sessionSource(cfg, provider)
	if err != nil {
		return nil, err
	}

	switch domain.Backend(cfg.KeyBackend) {
	case domain.BackendRemote:
		if provider == nil {
			return nil, fmt.Errorf("remote backend requires a key provider")
		}
		return NewRemoteKeyService(provider, domain.MasterKeyRef(cfg.KMSKeyID), session), nil
	case domain.BackendLocalSecret:
		return NewLocalSecretKeyService(cfg.LocalPassphrase, session), nil
	case domain.BackendLocalAEAD:
		svc, err := NewLocalAEADKeyService(cfg.LocalMasterKey, session)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown key backend %q", cfg.KeyBackend)
	}
}

func sessionSource(cfg *config.Config, provider KeyProvider) (SecretSource, error) {
	if cfg.SessionSecretWrapped != "" {
		if provider == nil {
			return nil, fmt.Errorf("wrapped session secret requires a key provider")
		}
		return WrappedSecret{Provider: provider, Wrapped: cfg.SessionSecretWrapped}, nil
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("session secret is not configured")
	}
	return LiteralSecret(cfg.SessionSecret), nil
}

// generateAESKey はAES-256鍵を生成する。
func generateAESKey() ([]byte, error) {
	key := make([]byte, keySize)
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}
