package infra

import (
	"context"
	"crypto/rand"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"

	"tenant-key-service/internal/domain"
)

// cloudKMSAPI はテストで差し替えるためのCloud KMSクライアントのサブセット。
type cloudKMSAPI interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
	Close() error
}

// CloudKMSProvider はCloud KMSクライアントをラップする。
// Cloud KMSにはデータ鍵生成APIがないため、鍵はローカルで生成してからKMSでラップする。
type CloudKMSProvider struct {
	client  cloudKMSAPI
	keyName string
}

// NewCloudKMSProvider はkeyNameをアンラップ用の鍵としてCloudKMSProviderを生成する。
func NewCloudKMSProvider(ctx context.Context, keyName string) (*CloudKMSProvider, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS_KEY_ID is required for the gcp provider")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &CloudKMSProvider{
		client:  client,
		keyName: keyName,
	}, nil
}

// GenerateDataKey はデータ鍵を生成し、refの鍵で暗号化した形と合わせて返す。
func (c *CloudKMSProvider) GenerateDataKey(ctx context.Context, ref domain.MasterKeyRef, spec domain.KeySpec) (*domain.DataKey, error) {
	size := spec.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedKeySpec, spec)
	}
	name, err := boundKeyName(ref, c.keyName)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, size)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}

	resp, err := c.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:      name,
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encrypting: %v", domain.ErrProvider, err)
	}
	return &domain.DataKey{Plaintext: plaintext, Wrapped: resp.Ciphertext}, nil
}

// Unwrap はラップされた鍵を生成時と同じ鍵（keyName）でCloud KMSにより復号する。
func (c *CloudKMSProvider) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	resp, err := c.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       c.keyName,
		Ciphertext: wrapped,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting: %v", domain.ErrProvider, err)
	}
	return resp.Plaintext, nil
}

// Name はプロバイダ名を返す。
func (c *CloudKMSProvider) Name() string { return "gcp" }

// boundKeyName はデータ鍵の生成に使う鍵名を決める。
// Cloud KMSとVault Transitの暗号文は鍵名を含まず、Unwrapは常に設定済みの鍵を使うため、
// それ以外の鍵で生成したデータ鍵は後から復号できない。
func boundKeyName(ref domain.MasterKeyRef, configured string) (string, error) {
	if ref == "" || string(ref) == configured {
		return configured, nil
	}
	return "", fmt.Errorf("%w: %q (provider is bound to %q)", domain.ErrKeyRefMismatch, ref, configured)
}

// Close はKMSクライアントを閉じる。
func (c *CloudKMSProvider) Close() error {
	return c.client.Close()
}
