package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"tenant-key-service/internal/domain"
	"tenant-key-service/pkg/httputil"
)

// writeError はドメインエラーをHTTPステータスに変換して返す。
// 内部エラーの詳細はレスポンスに含めずログにのみ出力する。
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTenantID):
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
	case errors.Is(err, domain.ErrTenantNotFound):
		httputil.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "no token has been issued for this tenant")
	case errors.Is(err, domain.ErrTokenAlreadyExists):
		httputil.Error(w, http.StatusConflict, "TOKEN_ALREADY_EXISTS", "a token has already been issued for this tenant")
	case errors.Is(err, domain.ErrInvalidCredential):
		httputil.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIAL", "credential is invalid or expired")
	case errors.Is(err, domain.ErrInvalidToken):
		// プロバイダ障害を含む場合もトークンを解決できなかった扱い
		httputil.Error(w, http.StatusUnprocessableEntity, "INVALID_TOKEN", "tenant token could not be resolved")
	case errors.Is(err, domain.ErrDecryption):
		httputil.Error(w, http.StatusUnprocessableEntity, "DECRYPTION_FAILED", "ciphertext could not be decrypted")
	case errors.Is(err, domain.ErrProvider):
		slog.ErrorContext(r.Context(), "key provider failure", "operation", operation, "error", err)
		httputil.Error(w, http.StatusBadGateway, "KEY_PROVIDER_ERROR", "key provider is unavailable")
	default:
		slog.ErrorContext(r.Context(), "request failed", "operation", operation, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", message)
}
