package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"

	"tenant-key-service/internal/cipher"
	"tenant-key-service/internal/domain"
)

// RemoteKeyService はリモートKMSによるエンベロープ暗号化の実装。
// テナントトークンはラップされたデータ鍵で、テナント秘密鍵は呼び出しごとにアンラップする（キャッシュしない）。
type RemoteKeyService struct {
	*sessionSigner
	provider KeyProvider
	keyRef   domain.MasterKeyRef
}

// NewRemoteKeyService は新しいRemoteKeyServiceを生成する。
func NewRemoteKeyService(provider KeyProvider, keyRef domain.MasterKeyRef, session SecretSource) *RemoteKeyService {
	return &RemoteKeyService{
		sessionSigner: newSessionSigner(session),
		provider:      provider,
		keyRef:        keyRef,
	}
}

// Backend は実装種別を返す。
func (s *RemoteKeyService) Backend() domain.Backend { return domain.BackendRemote }

// GenTenantToken はデータ鍵を生成し、ラップされた鍵をbase64化してトークンとする。
func (s *RemoteKeyService) GenTenantToken(ctx context.Context) (string, error) {
	dk, err := s.provider.GenerateDataKey(ctx, s.keyRef, domain.KeySpecAES256)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate data key",
			"operation", "gen_tenant_token",
			"key_id", string(s.keyRef),
			"error", err,
		)
		return "", fmt.Errorf("generating data key: %w", err)
	}
	memguard.WipeBytes(dk.Plaintext)
	return base64.StdEncoding.EncodeToString(dk.Wrapped), nil
}

// TenantEncrypt はトークンをアンラップして得た秘密鍵で平文を暗号化する。
func (s *RemoteKeyService) TenantEncrypt(ctx context.Context, plaintext, token string) (string, error) {
	secret, err := s.resolve(ctx, token)
	if err != nil {
		return "", err
	}
	defer memguard.WipeBytes(secret)

	return cipher.EncryptClassicSecret(plaintext, secret)
}

// TenantDecrypt はトークンをアンラップして得た秘密鍵で暗号文を復号する。
func (s *RemoteKeyService) TenantDecrypt(ctx context.Context, ciphertext, token string) (string, error) {
	secret, err := s.resolve(ctx, token)
	if err != nil {
		return "", err
	}
	defer memguard.WipeBytes(secret)

	return cipher.DecryptClassicSecret(ciphertext, secret)
}

// resolve はトークンをテナント秘密鍵（base64化したデータ鍵）に解決する。
func (s *RemoteKeyService) resolve(ctx context.Context, token string) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(token)
	if err != nil || len(wrapped) == 0 {
		return nil, fmt.Errorf("%w: malformed token", domain.ErrInvalidToken)
	}

	plaintext, err := s.provider.Unwrap(ctx, wrapped)
	if err != nil {
		slog.ErrorContext(ctx, "failed to unwrap tenant token",
			"operation", "resolve_tenant_token",
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	defer memguard.WipeBytes(plaintext)

	secret := make([]byte, base64.StdEncoding.EncodedLen(len(plaintext)))
	base64.StdEncoding.Encode(secret, plaintext)
	return secret, nil
}
