package handler

import (
	"context"
	"net/http"

	"tenant-key-service/internal/domain"
	"tenant-key-service/internal/middleware"
	"tenant-key-service/pkg/httputil"
)

// SessionSigner はセッション資格情報の署名/検証のインターフェース。
type SessionSigner interface {
	SignCredential(ctx context.Context, payload domain.Payload) (string, error)
	VerifyCredential(ctx context.Context, credential string) (domain.Payload, error)
}

// SessionHandler はセッション資格情報のHTTPハンドラ。
type SessionHandler struct {
	signer SessionSigner
}

// NewSessionHandler は新しいSessionHandlerを生成する。
func NewSessionHandler(signer SessionSigner) *SessionHandler {
	return &SessionHandler{signer: signer}
}

// SignRequest は資格情報発行のリクエスト形式。
type SignRequest struct {
	TenantID string         `json:"tenant_id"`
	Scopes   []string       `json:"scopes"`
	Claims   map[string]any `json:"claims,omitempty"`
}

// CredentialResponse は資格情報発行のレスポンス形式。
type CredentialResponse struct {
	Credential string `json:"credential"`
}

// VerifyRequest は資格情報検証のリクエスト形式。
type VerifyRequest struct {
	Credential string `json:"credential"`
}

// VerifyResponse は資格情報検証のレスポンス形式。
type VerifyResponse struct {
	Payload domain.Payload `json:"payload"`
}

// reservedClaims は呼び出し元が上書きできないクレーム。
var reservedClaims = map[string]struct{}{
	"iat":       {},
	"exp":       {},
	"tenant_id": {},
	"scopes":    {},
}

// Sign はセッション資格情報を発行する。
func (h *SessionHandler) Sign(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil || req.TenantID == "" {
		writeBadRequest(w, "request body must include tenant_id")
		return
	}

	payload := domain.SessionPayload{TenantID: req.TenantID, Scopes: req.Scopes}.ToPayload()
	for k, v := range req.Claims {
		if _, reserved := reservedClaims[k]; reserved {
			writeBadRequest(w, "claim "+k+" is reserved")
			return
		}
		payload[k] = v
	}

	credential, err := h.signer.SignCredential(r.Context(), payload)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "SIGN_CREDENTIAL", req.TenantID, middleware.ResultFailed)
		writeError(w, r, "sign_credential", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "SIGN_CREDENTIAL", req.TenantID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, CredentialResponse{Credential: credential})
}

// Verify はセッション資格情報を検証してペイロードを返す。
func (h *SessionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil || req.Credential == "" {
		writeBadRequest(w, "request body must be {\"credential\": string}")
		return
	}

	payload, err := h.signer.VerifyCredential(r.Context(), req.Credential)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "VERIFY_CREDENTIAL", "", middleware.ResultFailed)
		writeError(w, r, "verify_credential", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "VERIFY_CREDENTIAL", payload.TenantID(), middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, VerifyResponse{Payload: payload})
}
