package domain

import "time"

// SessionLifetime はセッション資格情報の有効期間。
const SessionLifetime = 24 * time.Hour

// Payload はセッション資格情報に埋め込むアプリケーション定義のクレーム。
// 値はJSONとして往復するため、検証後は数値がfloat64、配列が[]any、
// オブジェクトがmap[string]anyで返る。同値比較したい場合はJSON型で組み立てる。
type Payload map[string]any

// SessionPayload はセッション資格情報の最小構成。
type SessionPayload struct {
	TenantID string
	Scopes   []string
}

// ToPayload はSessionPayloadをPayloadに変換する。
func (p SessionPayload) ToPayload() Payload {
	scopes := make([]any, len(p.Scopes))
	for i, s := range p.Scopes {
		scopes[i] = s
	}
	return Payload{
		"tenant_id": p.TenantID,
		"scopes":    scopes,
	}
}

// TenantID はペイロードからテナントIDを取り出す。
func (p Payload) TenantID() string {
	v, _ := p["tenant_id"].(string)
	return v
}
