// Package middleware はHTTPミドルウェアと監査ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

const (
	// ResultSuccess は操作成功を表す監査ログの結果値。
	ResultSuccess = "SUCCESS"
	// ResultFailed は操作失敗を表す監査ログの結果値。
	ResultFailed = "FAILED"
)

// WriteAuditLog は監査ログを出力する。鍵・トークン・平文は渡さないこと。
func WriteAuditLog(ctx context.Context, operation string, tenantID string, result string) {
	slog.InfoContext(ctx, "key operation completed",
		"operation", operation,
		"tenant_id", tenantID,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
