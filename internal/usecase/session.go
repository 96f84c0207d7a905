package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"tenant-key-service/internal/domain"
)

// SecretSource はセッション秘密鍵の取得元。
type SecretSource interface {
	Resolve(ctx context.Context) ([]byte, error)
}

// LiteralSecret は設定値をそのままセッション秘密鍵として使う。
type LiteralSecret []byte

// Resolve は設定値のコピーを返す。
func (s LiteralSecret) Resolve(ctx context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, errors.New("session secret is empty")
	}
	out := make([]byte, len(s))
	copy(out, s)
	return out, nil
}

// WrappedSecret はラップ済みのセッション秘密鍵をKeyProviderでアンラップして使う。
type WrappedSecret struct {
	Provider KeyProvider
	Wrapped  string // base64
}

// Resolve はWrappedをアンラップし、base64化した平文を秘密鍵として返す。
func (s WrappedSecret) Resolve(ctx context.Context) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s.Wrapped)
	if err != nil {
		return nil, fmt.Errorf("decoding wrapped session secret: %w", err)
	}
	plaintext, err := s.Provider.Unwrap(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("unwrapping session secret: %w", err)
	}
	defer memguard.WipeBytes(plaintext)

	secret := make([]byte, base64.StdEncoding.EncodedLen(len(plaintext)))
	base64.StdEncoding.Encode(secret, plaintext)
	return secret, nil
}

// sessionSigner はセッション資格情報（HS256 JWT）の署名と検証を行う。
// 秘密鍵は初回利用時に一度だけ解決され、以降はプロセスの生存期間中キャッシュされる。
type sessionSigner struct {
	source  SecretSource
	enclave atomic.Pointer[memguard.Enclave]
	group   singleflight.Group
	now     func() time.Time
}

func newSessionSigner(source SecretSource) *sessionSigner {
	return &sessionSigner{
		source: source,
		now:    time.Now,
	}
}

// secret はキャッシュ済みの秘密鍵を返す。未キャッシュの場合は解決してキャッシュする。
// 同時に到着した初回呼び出しは一つの解決にまとめられる。失敗はキャッシュしない。
// 解決は呼び出し元のキャンセルから切り離し、各呼び出し元は自身のctxが終わった時点で離脱する。
func (s *sessionSigner) secret(ctx context.Context) (*memguard.Enclave, error) {
	if e := s.enclave.Load(); e != nil {
		return e, nil
	}

	resolveCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan("session-secret", func() (interface{}, error) {
		if e := s.enclave.Load(); e != nil {
			return e, nil
		}
		secret, err := s.source.Resolve(resolveCtx)
		if err != nil {
			return nil, err
		}
		if len(secret) == 0 {
			return nil, errors.New("session secret is empty")
		}
		// NewEnclaveは引数のバッファを消去する
		e := memguard.NewEnclave(secret)
		s.enclave.Store(e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolving session secret: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("resolving session secret: %w", res.Err)
		}
		return res.Val.(*memguard.Enclave), nil
	}
}

func (s *sessionSigner) withSecret(ctx context.Context, fn func(key []byte) error) error {
	e, err := s.secret(ctx)
	if err != nil {
		return err
	}
	buf, err := e.Open()
	if err != nil {
		return fmt.Errorf("opening session secret: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// SignCredential はpayloadに発行時刻と24時間後の有効期限を付与して署名する。
func (s *sessionSigner) SignCredential(ctx context.Context, payload domain.Payload) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(domain.SessionLifetime).Unix()

	var signed string
	err := s.withSecret(ctx, func(key []byte) error {
		var err error
		signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("signing credential: %w", err)
	}
	return signed, nil
}

// VerifyCredential は署名と有効期限を検証し、ペイロードを返す。
// 署名不正、期限切れ、形式不正はいずれもErrInvalidCredentialとして返す。
// 返るペイロードはJSONを経由するため、数値はfloat64、配列は[]anyになる。
func (s *sessionSigner) VerifyCredential(ctx context.Context, credential string) (domain.Payload, error) {
	claims := jwt.MapClaims{}
	var parseErr error
	err := s.withSecret(ctx, func(key []byte) error {
		token, err := jwt.ParseWithClaims(credential, claims,
			func(t *jwt.Token) (interface{}, error) { return key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(s.now),
		)
		if err == nil && !token.Valid {
			err = errors.New("token is not valid")
		}
		parseErr = err
		return nil
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, domain.ErrInvalidCredential
	}
	return domain.Payload(claims), nil
}
