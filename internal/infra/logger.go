package infra

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"tenant-key-service/config"
)

// ContextHandler はリクエストIDとトレース情報をログレコードに付与するslogハンドラ。
type ContextHandler struct {
	slog.Handler
	// traceResource はCloud Loggingのトレースリソース名の接頭辞。空なら付与しない。
	traceResource string
	withTrace     bool
}

// NewContextHandler は next をラップしたContextHandlerを生成する。
func NewContextHandler(next slog.Handler, cfg *config.Config) *ContextHandler {
	h := &ContextHandler{Handler: next, withTrace: cfg.OtelEnabled}
	if cfg.GoogleCloudProject != "" {
		h.traceResource = "projects/" + cfg.GoogleCloudProject + "/traces/"
	}
	return h
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		r.AddAttrs(slog.String("request_id", reqID))
	}
	if h.withTrace {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			traceID := sc.TraceID().String()
			r.AddAttrs(
				slog.String("trace", traceID),
				slog.String("spanId", sc.SpanID().String()),
				slog.Bool("traceSampled", sc.IsSampled()),
			)
			if h.traceResource != "" {
				r.AddAttrs(
					slog.String("logging.googleapis.com/trace", h.traceResource+traceID),
					slog.String("logging.googleapis.com/spanId", sc.SpanID().String()),
					slog.Bool("logging.googleapis.com/trace_sampled", sc.IsSampled()),
				)
			}
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.Handler = h.Handler.WithAttrs(attrs)
	return &clone
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.Handler = h.Handler.WithGroup(name)
	return &clone
}

// ParseLogLevel はLOG_LEVELの文字列をslog.Levelに変換する。未知の値はINFOとして扱う。
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger はサーバー用のグローバルロガーをstdoutに設定する。
func SetupLogger(cfg *config.Config) {
	setupLogger(os.Stdout, cfg)
}

// SetupCLILogger はCLI用にstderrへ出力するロガーを設定する。
func SetupCLILogger(cfg *config.Config) {
	setupLogger(os.Stderr, cfg)
}

func setupLogger(w io.Writer, cfg *config.Config) {
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(cfg.LogLevel)})
	slog.SetDefault(slog.New(NewContextHandler(base, cfg)))
}
