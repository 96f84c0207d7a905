package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"tenant-key-service/internal/domain"
)

const (
	// AEADKeySize はAES-256の鍵長。
	AEADKeySize = 32
	nonceSize   = 12
	tagSize     = 16
)

// EncryptAEAD はAES-256-GCMで平文を暗号化する。
// 出力形式: hex(nonce) || hex(ciphertext) || hex(tag)（区切りなし・小文字）
func EncryptAEAD(plaintext string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", domain.ErrEncryption, err)
	}

	// Sealの出力は ciphertext || tag
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + hex.EncodeToString(ct) + hex.EncodeToString(tag), nil
}

// DecryptAEAD はEncryptAEADの逆変換。タグ検証に失敗した場合は平文を一切返さない。
func DecryptAEAD(ciphertext string, key []byte) (string, error) {
	if len(ciphertext) < 2*(nonceSize+tagSize) || len(ciphertext)%2 != 0 {
		return "", fmt.Errorf("%w: malformed ciphertext", domain.ErrDecryption)
	}

	nonceHex := ciphertext[:2*nonceSize]
	ctHex := ciphertext[2*nonceSize : len(ciphertext)-2*tagSize]
	tagHex := ciphertext[len(ciphertext)-2*tagSize:]

	nonce, err := decodeLowerHex(nonceHex)
	if err != nil {
		return "", fmt.Errorf("%w: decoding nonce: %v", domain.ErrDecryption, err)
	}
	ct, err := decodeLowerHex(ctHex)
	if err != nil {
		return "", fmt.Errorf("%w: decoding ciphertext: %v", domain.ErrDecryption, err)
	}
	tag, err := decodeLowerHex(tagHex)
	if err != nil {
		return "", fmt.Errorf("%w: decoding tag: %v", domain.ErrDecryption, err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}

	plaintext, err := gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	// 標準のGCMは96bit nonce・128bitタグ
	return cipher.NewGCM(block)
}

// decodeLowerHex は小文字のhexのみを受け付ける。大文字を含む入力は不正な暗号文として扱う。
func decodeLowerHex(s string) ([]byte, error) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return nil, fmt.Errorf("invalid hex character %q", c)
		}
	}
	return hex.DecodeString(s)
}
