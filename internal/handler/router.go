package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tenant-key-service/internal/middleware"
)

// NewRouter はルーターを生成する。regに登録されたメトリクスを /metrics で公開する。
func NewRouter(tenants *TenantHandler, sessions *SessionHandler, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewHTTPMetrics(reg).Handler)

	// ルート定義
	r.Route("/v1/tenants/{tenant_id}", func(r chi.Router) {
		r.Post("/token", tenants.ProvisionToken)
		r.Post("/encrypt", tenants.Encrypt)
		r.Post("/decrypt", tenants.Decrypt)
	})
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", sessions.Sign)
		r.Post("/verify", sessions.Verify)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(r, "tenant-key-service")
}
