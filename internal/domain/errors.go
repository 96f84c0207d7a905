package domain

import "errors"

var (
	// ErrProvider はリモート鍵管理システムの障害（到達不能・権限なし・鍵なし）を表す。
	ErrProvider = errors.New("key provider error")

	// ErrInvalidToken はテナントトークンを秘密鍵に解決できない場合のエラー。
	ErrInvalidToken = errors.New("invalid tenant token")

	// ErrEncryption は暗号化処理の失敗を表す。
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption は復号処理の失敗（認証タグ不一致を含む）を表す。
	ErrDecryption = errors.New("decryption failed")

	// ErrInvalidCredential はセッション資格情報の署名不正または期限切れを表す。
	// 呼び出し元にはどちらが原因かを区別させない。
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrKeyRefMismatch はアンラップに使う鍵と異なるマスター鍵でデータ鍵を生成しようとした場合のエラー。
	ErrKeyRefMismatch = errors.New("master key reference does not match the provider key")

	// ErrUnsupportedKeySpec は未対応の鍵仕様が指定された場合のエラー。
	ErrUnsupportedKeySpec = errors.New("unsupported key spec")

	// ErrTenantNotFound は指定されたテナントのトークンが存在しない場合のエラー。
	ErrTenantNotFound = errors.New("tenant token not found")

	// ErrTokenAlreadyExists は指定されたテナントに既にトークンが存在する場合のエラー。
	ErrTokenAlreadyExists = errors.New("tenant token already exists")

	// ErrInvalidTenantID はテナントIDの形式が不正な場合のエラー。
	ErrInvalidTenantID = errors.New("invalid tenant ID")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrMigrationChecksumMismatch は適用済みマイグレーションのファイルが変更されている場合のエラー。
	ErrMigrationChecksumMismatch = errors.New("applied migration has been modified")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
