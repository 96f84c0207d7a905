// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tenant-key-service/internal/domain"
	"tenant-key-service/internal/middleware"
	"tenant-key-service/pkg/httputil"
)

// TenantService はテナント単位のトークン操作のインターフェース。
type TenantService interface {
	Provision(ctx context.Context, tenantID string) (*domain.TenantToken, error)
	Encrypt(ctx context.Context, tenantID, plaintext string) (string, error)
	Decrypt(ctx context.Context, tenantID, ciphertext string) (string, error)
}

// TenantHandler はテナントのトークン発行と暗号化/復号のHTTPハンドラ。
type TenantHandler struct {
	service TenantService
}

// NewTenantHandler は新しいTenantHandlerを生成する。
func NewTenantHandler(service TenantService) *TenantHandler {
	return &TenantHandler{service: service}
}

// TokenResponse はトークン発行のレスポンス形式。トークン自体は返さない。
type TokenResponse struct {
	TenantID  string `json:"tenant_id"`
	Backend   string `json:"backend"`
	CreatedAt string `json:"created_at"`
}

// EncryptRequest は暗号化のリクエスト形式。
type EncryptRequest struct {
	Plaintext string `json:"plaintext"`
}

// EncryptResponse は暗号化のレスポンス形式。
type EncryptResponse struct {
	Ciphertext string `json:"ciphertext"`
}

// DecryptRequest は復号のリクエスト形式。
type DecryptRequest struct {
	Ciphertext string `json:"ciphertext"`
}

// DecryptResponse は復号のレスポンス形式。
type DecryptResponse struct {
	Plaintext string `json:"plaintext"`
}

// ProvisionToken はテナントにトークンを払い出す。
func (h *TenantHandler) ProvisionToken(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")

	token, err := h.service.Provision(r.Context(), tenantID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "PROVISION_TOKEN", tenantID, middleware.ResultFailed)
		writeError(w, r, "provision_token", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "PROVISION_TOKEN", tenantID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, TokenResponse{
		TenantID:  token.TenantID,
		Backend:   string(token.Backend),
		CreatedAt: token.CreatedAt.Format(time.RFC3339),
	})
}

// Encrypt はテナントのトークンで平文を暗号化する。
func (h *TenantHandler) Encrypt(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")

	var req EncryptRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "request body must be {\"plaintext\": string}")
		return
	}

	ciphertext, err := h.service.Encrypt(r.Context(), tenantID, req.Plaintext)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ENCRYPT", tenantID, middleware.ResultFailed)
		writeError(w, r, "encrypt", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ENCRYPT", tenantID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, EncryptResponse{Ciphertext: ciphertext})
}

// Decrypt はテナントのトークンで暗号文を復号する。
func (h *TenantHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")

	var req DecryptRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil || req.Ciphertext == "" {
		writeBadRequest(w, "request body must be {\"ciphertext\": string}")
		return
	}

	plaintext, err := h.service.Decrypt(r.Context(), tenantID, req.Ciphertext)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "DECRYPT", tenantID, middleware.ResultFailed)
		writeError(w, r, "decrypt", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DECRYPT", tenantID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, DecryptResponse{Plaintext: plaintext})
}
