package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tenant-key-service/config"
	"tenant-key-service/internal/domain"
)

// Provider はリモート鍵管理システムの共通インターフェース。
type Provider interface {
	GenerateDataKey(ctx context.Context, ref domain.MasterKeyRef, spec domain.KeySpec) (*domain.DataKey, error)
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
	Name() string
	Close() error
}

// NewProvider は設定のKeyProviderに応じたプロバイダを生成する。
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.KeyProvider {
	case "aws":
		return NewAWSKMSProvider(ctx, cfg.AWSRegion, cfg.KMSEndpoint)
	case "gcp":
		return NewCloudKMSProvider(ctx, cfg.KMSKeyID)
	case "vault":
		return NewVaultTransitProvider(cfg.VaultAddress, cfg.VaultToken, cfg.KMSKeyID)
	default:
		return nil, fmt.Errorf("unknown key provider %q", cfg.KeyProvider)
	}
}

// ProviderMetrics はプロバイダ呼び出しのPrometheusメトリクス。
type ProviderMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewProviderMetrics はメトリクスを生成してregに登録する。
func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	m := &ProviderMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tks_key_provider_requests_total",
				Help: "Total number of remote key provider calls.",
			},
			[]string{"provider", "operation", "result"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tks_key_provider_latency_seconds",
				Help:    "Latency of remote key provider calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

func (m *ProviderMetrics) observe(provider, operation string, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.requests.WithLabelValues(provider, operation, result).Inc()
	m.latency.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// InstrumentedProvider はプロバイダ呼び出しにトレースとメトリクスを付与する。
type InstrumentedProvider struct {
	next    Provider
	metrics *ProviderMetrics
	tracer  trace.Tracer
}

// NewInstrumentedProvider はnextをラップしたInstrumentedProviderを生成する。
func NewInstrumentedProvider(next Provider, metrics *ProviderMetrics) *InstrumentedProvider {
	return &InstrumentedProvider{
		next:    next,
		metrics: metrics,
		tracer:  otel.Tracer("tenant-key-service/infra"),
	}
}

// GenerateDataKey はnext.GenerateDataKeyを計測付きで呼び出す。
func (p *InstrumentedProvider) GenerateDataKey(ctx context.Context, ref domain.MasterKeyRef, spec domain.KeySpec) (*domain.DataKey, error) {
	ctx, span := p.tracer.Start(ctx, "KeyProvider.GenerateDataKey", trace.WithAttributes(
		attribute.String("key_provider", p.next.Name()),
		attribute.String("key_spec", string(spec)),
	))
	defer span.End()

	start := time.Now()
	dk, err := p.next.GenerateDataKey(ctx, ref, spec)
	p.finish(span, "generate_data_key", err, time.Since(start))
	return dk, err
}

// Unwrap はnext.Unwrapを計測付きで呼び出す。
func (p *InstrumentedProvider) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	ctx, span := p.tracer.Start(ctx, "KeyProvider.Unwrap", trace.WithAttributes(
		attribute.String("key_provider", p.next.Name()),
	))
	defer span.End()

	start := time.Now()
	plaintext, err := p.next.Unwrap(ctx, wrapped)
	p.finish(span, "unwrap", err, time.Since(start))
	return plaintext, err
}

func (p *InstrumentedProvider) finish(span trace.Span, operation string, err error, d time.Duration) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, operation+" failed")
	}
	if p.metrics != nil {
		p.metrics.observe(p.next.Name(), operation, err, d)
	}
}

// Name はラップ対象のプロバイダ名を返す。
func (p *InstrumentedProvider) Name() string { return p.next.Name() }

// Close はラップ対象のプロバイダを閉じる。
func (p *InstrumentedProvider) Close() error { return p.next.Close() }
