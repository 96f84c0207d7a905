package infra

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"tenant-key-service/internal/domain"
)

// awsKMSAPI はテストで差し替えるためのAWS KMSクライアントのサブセット。
type awsKMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSProvider はAWS KMSのGenerateDataKey/Decryptをラップする。
type AWSKMSProvider struct {
	client awsKMSAPI
}

// NewAWSKMSProvider はregionと任意のendpoint（LocalStack等）からAWSKMSProviderを生成する。
func NewAWSKMSProvider(ctx context.Context, region, endpoint string) (*AWSKMSProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := kms.NewFromConfig(cfg, func(o *kms.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &AWSKMSProvider{client: client}, nil
}

// GenerateDataKey はrefのマスター鍵の下で新しいデータ鍵を生成する。
func (p *AWSKMSProvider) GenerateDataKey(ctx context.Context, ref domain.MasterKeyRef, spec domain.KeySpec) (*domain.DataKey, error) {
	if spec != domain.KeySpecAES256 {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedKeySpec, spec)
	}
	out, err := p.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(string(ref)),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: generating data key: %v", domain.ErrProvider, err)
	}
	return &domain.DataKey{Plaintext: out.Plaintext, Wrapped: out.CiphertextBlob}, nil
}

// Unwrap はラップされた鍵を復号する。マスター鍵はCiphertextBlobに埋め込まれている。
func (p *AWSKMSProvider) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting: %v", domain.ErrProvider, err)
	}
	return out.Plaintext, nil
}

// Name はプロバイダ名を返す。
func (p *AWSKMSProvider) Name() string { return "aws" }

// Close は何もしない。AWS SDKのクライアントは閉じる必要がない。
func (p *AWSKMSProvider) Close() error { return nil }
