// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// MasterKeyRef は外部の鍵管理システムが保持するマスター鍵の識別子（エイリアス・ARN・リソース名）。
type MasterKeyRef string

// KeySpec はデータ鍵の仕様を表す。
type KeySpec string

// KeySpecAES256 は256bitの対称鍵を表す。
const KeySpecAES256 KeySpec = "AES_256"

// Size は鍵仕様に対応するバイト長を返す。未対応の場合は0。
func (s KeySpec) Size() int {
	switch s {
	case KeySpecAES256:
		return 32
	default:
		return 0
	}
}

// DataKey はリモート鍵管理システムが生成したデータ鍵。
type DataKey struct {
	Plaintext []byte // 平文の鍵（呼び出しの間だけ保持する）
	Wrapped   []byte // マスター鍵でラップされた鍵
}

// Backend はKey Serviceの実装種別を表す。
type Backend string

const (
	// BackendRemote はリモートKMSによるエンベロープ暗号化。
	BackendRemote Backend = "remote"
	// BackendLocalSecret は固定パスフレーズによるローカル暗号化。
	BackendLocalSecret Backend = "local-secret"
	// BackendLocalAEAD は固定マスター鍵によるAES-GCMローカル暗号化。
	BackendLocalAEAD Backend = "local-aead"
)

// TenantToken はテナントごとに払い出されたトークンを表す。
type TenantToken struct {
	ID        string
	TenantID  string
	Token     string
	Backend   Backend
	CreatedAt time.Time
	UpdatedAt time.Time
}
