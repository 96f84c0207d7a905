package infra

import (
	"context"
	"encoding/base64"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"tenant-key-service/internal/domain"
)

// VaultTransitProvider はVault Transitシークレットエンジンでデータ鍵を生成・アンラップする。
type VaultTransitProvider struct {
	client  *vault.Client
	keyName string
	mount   string
}

// NewVaultTransitProvider はVaultのアドレスとトークンからVaultTransitProviderを生成する。
func NewVaultTransitProvider(address, token, keyName string) (*VaultTransitProvider, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS_KEY_ID is required for the vault provider")
	}

	cfg := vault.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultTransitProvider{
		client:  client,
		keyName: keyName,
		mount:   "transit",
	}, nil
}

// GenerateDataKey はtransit/datakey/plaintext でデータ鍵を生成する。
func (p *VaultTransitProvider) GenerateDataKey(ctx context.Context, ref domain.MasterKeyRef, spec domain.KeySpec) (*domain.DataKey, error) {
	size := spec.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedKeySpec, spec)
	}
	name, err := boundKeyName(ref, p.keyName)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/datakey/plaintext/%s", p.mount, name)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"bits": size * 8,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: generating data key: %v", domain.ErrProvider, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: empty response from vault", domain.ErrProvider)
	}

	wrapped, ok := secret.Data["ciphertext"].(string)
	if !ok || wrapped == "" {
		return nil, fmt.Errorf("%w: ciphertext missing in vault response", domain.ErrProvider)
	}
	plaintext, err := decodeVaultPlaintext(secret.Data["plaintext"])
	if err != nil {
		return nil, err
	}

	return &domain.DataKey{Plaintext: plaintext, Wrapped: []byte(wrapped)}, nil
}

// Unwrap はtransit/decrypt でラップされた鍵を復号する。
func (p *VaultTransitProvider) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	path := fmt.Sprintf("%s/decrypt/%s", p.mount, p.keyName)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting: %v", domain.ErrProvider, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: empty response from vault", domain.ErrProvider)
	}
	return decodeVaultPlaintext(secret.Data["plaintext"])
}

// Name はプロバイダ名を返す。
func (p *VaultTransitProvider) Name() string { return "vault" }

// Close は何もしない。
func (p *VaultTransitProvider) Close() error { return nil }

func decodeVaultPlaintext(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, fmt.Errorf("%w: plaintext missing in vault response", domain.ErrProvider)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding plaintext: %v", domain.ErrProvider, err)
	}
	return b, nil
}
