// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	DatabaseDriver     string
	GoogleCloudProject string
	LogLevel           string

	// 鍵管理
	KeyBackend           string
	KeyProvider          string
	KMSKeyID             string
	AWSRegion            string
	KMSEndpoint          string
	VaultAddress         string
	VaultToken           string
	LocalPassphrase      string
	LocalMasterKey       string
	SessionSecret        string
	SessionSecretWrapped string

	// トレーシング
	OtelEnabled      bool
	OtelEndpoint     string
	OtelInsecure     bool
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数と設定ファイル（config.yaml、任意）から設定を読み込む。
// 環境変数が設定ファイルより優先される。サーバー起動時はValidateで必須項目を検証すること。
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("database_driver", "mysql")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("key_backend", "remote")
	v.SetDefault("key_provider", "aws")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("otel_service_name", "tenant-key-service")
	v.SetDefault("otel_sampling_rate", 1.0)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		Port:                 v.GetString("port"),
		DatabaseURL:          v.GetString("database_url"),
		DatabaseDriver:       v.GetString("database_driver"),
		GoogleCloudProject:   v.GetString("google_cloud_project"),
		LogLevel:             v.GetString("log_level"),
		KeyBackend:           v.GetString("key_backend"),
		KeyProvider:          v.GetString("key_provider"),
		KMSKeyID:             v.GetString("kms_key_id"),
		AWSRegion:            v.GetString("aws_region"),
		KMSEndpoint:          v.GetString("kms_endpoint"),
		VaultAddress:         v.GetString("vault_address"),
		VaultToken:           v.GetString("vault_token"),
		LocalPassphrase:      v.GetString("local_passphrase"),
		LocalMasterKey:       v.GetString("local_master_key"),
		SessionSecret:        v.GetString("session_secret"),
		SessionSecretWrapped: v.GetString("session_secret_wrapped"),
		OtelEnabled:          v.GetBool("otel_enabled"),
		OtelEndpoint:         v.GetString("otel_endpoint"),
		OtelInsecure:         v.GetBool("otel_insecure"),
		OtelServiceName:      v.GetString("otel_service_name"),
		OtelSamplingRate:     v.GetFloat64("otel_sampling_rate"),
	}

	return cfg, nil
}

// Validate はバックエンドごとの必須項目を検証する。
func (c *Config) Validate() error {
	switch c.KeyBackend {
	case "remote":
		if c.KMSKeyID == "" {
			return errors.New("KMS_KEY_ID is required for the remote backend")
		}
		if c.SessionSecret == "" && c.SessionSecretWrapped == "" {
			return errors.New("SESSION_SECRET or SESSION_SECRET_WRAPPED is required")
		}
	case "local-secret":
		if c.LocalPassphrase == "" {
			return errors.New("LOCAL_PASSPHRASE is required for the local-secret backend")
		}
		if c.SessionSecret == "" {
			return errors.New("SESSION_SECRET is required for the local-secret backend")
		}
	case "local-aead":
		if c.LocalMasterKey == "" {
			return errors.New("LOCAL_MASTER_KEY is required for the local-aead backend")
		}
		if c.SessionSecret == "" {
			return errors.New("SESSION_SECRET is required for the local-aead backend")
		}
	default:
		return fmt.Errorf("unknown key backend %q", c.KeyBackend)
	}
	return nil
}
