package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"tenant-key-service/config"
	"tenant-key-service/internal/domain"
	"tenant-key-service/internal/infra"
)

const (
	purposeTenant  = "tenant"
	purposeSession = "session"
)

// dataKeyCmd はリモートKMSで新しいデータ鍵を生成し、ラップされた鍵をbase64で出力する。
// 出力はremoteバックエンドのテナントトークン、またはSESSION_SECRET_WRAPPEDとしてそのまま使える。
func dataKeyCmd() *cobra.Command {
	var (
		providerName string
		keyID        string
		purpose      string
		region       string
		endpoint     string
	)
	cmd := &cobra.Command{
		Use:   "datakey",
		Short: "Generate a wrapped data key with the remote key provider",
		Long: "Generate a new AES-256 data key under a master key and print the wrapped key as base64.\n" +
			"Use --purpose tenant for a remote-backend tenant token, or --purpose session for SESSION_SECRET_WRAPPED.\n\n" +
			"For gcp and vault the server unwraps with its KMS_KEY_ID, so --key-id must be that same key.\n" +
			"AWS ciphertexts carry their key, so any key the server may decrypt with works.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if purpose != purposeTenant && purpose != purposeSession {
				return fmt.Errorf("--purpose must be %q or %q", purposeTenant, purposeSession)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			infra.SetupCLILogger(cfg)

			// フラグ指定が環境変数・設定ファイルより優先される
			cfg.KeyProvider = providerName
			cfg.KMSKeyID = keyID
			if region != "" {
				cfg.AWSRegion = region
			}
			if endpoint != "" {
				cfg.KMSEndpoint = endpoint
			}

			ctx := cmd.Context()
			provider, err := infra.NewProvider(ctx, cfg)
			if err != nil {
				slog.ErrorContext(ctx, "failed to init key provider",
					"operation", "generate_data_key",
					"key_id", keyID,
					"provider", providerName,
					"error", err,
				)
				return err
			}
			defer provider.Close()

			return generateDataKey(ctx, provider, domain.MasterKeyRef(keyID), purpose, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "aws", "Key provider: aws, gcp, vault")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Master key reference: ARN/alias, Cloud KMS key name or Transit key name (required)")
	cmd.Flags().StringVar(&purpose, "purpose", purposeTenant, "What the wrapped key is for: tenant, session")
	cmd.Flags().StringVar(&region, "region", "", "AWS region (overrides AWS_REGION)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "KMS endpoint override, e.g. LocalStack (overrides KMS_ENDPOINT)")
	_ = cmd.MarkFlagRequired("key-id")
	return cmd
}

// generateDataKey はデータ鍵を生成してラップされた鍵のみを出力する。平文の鍵は即座に消去する。
func generateDataKey(ctx context.Context, provider infra.Provider, ref domain.MasterKeyRef, purpose string, w io.Writer) error {
	dk, err := provider.GenerateDataKey(ctx, ref, domain.KeySpecAES256)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate data key",
			"operation", "generate_data_key",
			"key_id", string(ref),
			"provider", provider.Name(),
			"error", err,
		)
		return err
	}
	memguard.WipeBytes(dk.Plaintext)

	slog.InfoContext(ctx, "generated data key",
		"operation", "generate_data_key",
		"key_id", string(ref),
		"provider", provider.Name(),
		"purpose", purpose,
	)
	_, err = fmt.Fprintln(w, base64.StdEncoding.EncodeToString(dk.Wrapped))
	return err
}
