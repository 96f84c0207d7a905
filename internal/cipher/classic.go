// Package cipher はテナントデータ用の対称暗号プリミティブを提供する。
package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"tenant-key-service/internal/domain"
)

const (
	saltSize         = 16
	pbkdf2Iterations = 100000
	derivedKeySize   = chacha20poly1305.KeySize
	hkdfInfo         = "tenant-key-service classic v1"
)

// keyDerivation はsecretとsaltから暗号鍵を導出する。
type keyDerivation func(secret, salt []byte) ([]byte, error)

// EncryptClassic はパスフレーズから導出した鍵で平文を暗号化する。
// 呼び出しごとにsaltとnonceを生成し、base64(salt || nonce || ciphertext) を返す。
// 人が決めたパスフレーズ向けにPBKDF2（100000回）で鍵を導出する。
func EncryptClassic(plaintext string, passphrase []byte) (string, error) {
	return encryptClassic(plaintext, passphrase, pbkdf2Key)
}

// DecryptClassic はEncryptClassicの逆変換。
func DecryptClassic(ciphertext string, passphrase []byte) (string, error) {
	return decryptClassic(ciphertext, passphrase, pbkdf2Key)
}

// EncryptClassicSecret はEncryptClassicと同じ形式で暗号化するが、鍵はHKDF-SHA256で導出する。
// secretは32バイト以上のランダム値から作られたテナント秘密鍵であることを前提とする。
func EncryptClassicSecret(plaintext string, secret []byte) (string, error) {
	return encryptClassic(plaintext, secret, hkdfKey)
}

// DecryptClassicSecret はEncryptClassicSecretの逆変換。
func DecryptClassicSecret(ciphertext string, secret []byte) (string, error) {
	return decryptClassic(ciphertext, secret, hkdfKey)
}

func encryptClassic(plaintext string, secret []byte, derive keyDerivation) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: empty passphrase", domain.ErrEncryption)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: generating salt: %v", domain.ErrEncryption, err)
	}
	key, err := derive(secret, salt)
	if err != nil {
		return "", fmt.Errorf("%w: deriving key: %v", domain.ErrEncryption, err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", domain.ErrEncryption, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", domain.ErrEncryption, err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

func decryptClassic(ciphertext string, secret []byte, derive keyDerivation) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding ciphertext: %v", domain.ErrDecryption, err)
	}
	if len(raw) < saltSize+chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryption)
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSize]
	sealed := raw[saltSize+chacha20poly1305.NonceSize:]

	key, err := derive(secret, salt)
	if err != nil {
		return "", fmt.Errorf("%w: deriving key: %v", domain.ErrDecryption, err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", domain.ErrDecryption, err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return string(plaintext), nil
}

func pbkdf2Key(passphrase, salt []byte) ([]byte, error) {
	return pbkdf2.Key(passphrase, salt, pbkdf2Iterations, derivedKeySize, sha256.New), nil
}

func hkdfKey(secret, salt []byte) ([]byte, error) {
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}
