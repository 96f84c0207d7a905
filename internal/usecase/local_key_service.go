package usecase

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"tenant-key-service/internal/cipher"
	"tenant-key-service/internal/domain"
)

const (
	resolvedSecretTTL     = 10 * time.Minute
	resolvedSecretCleanup = 20 * time.Minute
)

// LocalSecretKeyService は固定パスフレーズによるローカル実装。
// 全テナントのトークンが同じパスフレーズで暗号化される。
type LocalSecretKeyService struct {
	*sessionSigner
	passphrase []byte
	resolved   *cache.Cache
}

// NewLocalSecretKeyService は新しいLocalSecretKeyServiceを生成する。
func NewLocalSecretKeyService(passphrase string, session SecretSource) *LocalSecretKeyService {
	return &LocalSecretKeyService{
		sessionSigner: newSessionSigner(session),
		passphrase:    []byte(passphrase),
		resolved:      cache.New(resolvedSecretTTL, resolvedSecretCleanup),
	}
}

// Backend は実装種別を返す。
func (s *LocalSecretKeyService) Backend() domain.Backend { return domain.BackendLocalSecret }

// GenTenantToken はランダムな秘密鍵を生成し、パスフレーズで暗号化してトークンとする。
func (s *LocalSecretKeyService) GenTenantToken(ctx context.Context) (string, error) {
	key, err := generateAESKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	secret := base64.StdEncoding.EncodeToString(key)

	token, err := cipher.EncryptClassic(secret, s.passphrase)
	if err != nil {
		return "", fmt.Errorf("wrapping tenant secret: %w", err)
	}
	return token, nil
}

// TenantEncrypt はテナント秘密鍵で平文を暗号化する。
func (s *LocalSecretKeyService) TenantEncrypt(ctx context.Context, plaintext, token string) (string, error) {
	secret, err := s.resolve(token)
	if err != nil {
		return "", err
	}
	return cipher.EncryptClassicSecret(plaintext, []byte(secret))
}

// TenantDecrypt はテナント秘密鍵で暗号文を復号する。
func (s *LocalSecretKeyService) TenantDecrypt(ctx context.Context, ciphertext, token string) (string, error) {
	secret, err := s.resolve(token)
	if err != nil {
		return "", err
	}
	return cipher.DecryptClassicSecret(ciphertext, []byte(secret))
}

func (s *LocalSecretKeyService) resolve(token string) (string, error) {
	if v, ok := s.resolved.Get(token); ok {
		return v.(string), nil
	}
	secret, err := cipher.DecryptClassic(token, s.passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	s.resolved.SetDefault(token, secret)
	return secret, nil
}

// LocalAEADKeyService は設定の固定マスター鍵によるAES-GCMローカル実装。
type LocalAEADKeyService struct {
	*sessionSigner
	masterKey []byte
}

// NewLocalAEADKeyService はbase64エンコードされた32バイトのマスター鍵からLocalAEADKeyServiceを生成する。
func NewLocalAEADKeyService(masterKeyB64 string, session SecretSource) (*LocalAEADKeyService, error) {
	masterKey, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}
	if len(masterKey) != cipher.AEADKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", cipher.AEADKeySize, len(masterKey))
	}
	return &LocalAEADKeyService{
		sessionSigner: newSessionSigner(session),
		masterKey:     masterKey,
	}, nil
}

// Backend は実装種別を返す。
func (s *LocalAEADKeyService) Backend() domain.Backend { return domain.BackendLocalAEAD }

// GenTenantToken は32バイトのデータ鍵を生成し、マスター鍵でAES-GCM暗号化してトークンとする。
func (s *LocalAEADKeyService) GenTenantToken(ctx context.Context) (string, error) {
	key, err := generateAESKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	token, err := cipher.EncryptAEAD(hex.EncodeToString(key), s.masterKey)
	if err != nil {
		return "", fmt.Errorf("wrapping tenant key: %w", err)
	}
	return token, nil
}

// TenantEncrypt はテナントのデータ鍵で平文をAES-GCM暗号化する。
func (s *LocalAEADKeyService) TenantEncrypt(ctx context.Context, plaintext, token string) (string, error) {
	key, err := s.resolve(token)
	if err != nil {
		return "", err
	}
	return cipher.EncryptAEAD(plaintext, key)
}

// TenantDecrypt はテナントのデータ鍵で暗号文を復号する。
func (s *LocalAEADKeyService) TenantDecrypt(ctx context.Context, ciphertext, token string) (string, error) {
	key, err := s.resolve(token)
	if err != nil {
		return "", err
	}
	return cipher.DecryptAEAD(ciphertext, key)
}

func (s *LocalAEADKeyService) resolve(token string) ([]byte, error) {
	secret, err := cipher.DecryptAEAD(token, s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	key, err := hex.DecodeString(secret)
	if err != nil || len(key) != cipher.AEADKeySize {
		return nil, fmt.Errorf("%w: unexpected tenant key format", domain.ErrInvalidToken)
	}
	return key, nil
}
