package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-key-service/internal/domain"
)

func TestSessionSigner_RoundTrip(t *testing.T) {
	ctx := context.Background()
	signer := newSessionSigner(LiteralSecret(testSessionSecret))

	payload := domain.SessionPayload{TenantID: "tenant-1", Scopes: []string{"read", "write"}}.ToPayload()
	credential, err := signer.SignCredential(ctx, payload)
	require.NoError(t, err)
	assert.Len(t, strings.Split(credential, "."), 3)

	got, err := signer.VerifyCredential(ctx, credential)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", got.TenantID())
	assert.Equal(t, []any{"read", "write"}, got["scopes"])

	iat, ok := got["iat"].(float64)
	require.True(t, ok, "iat should be numeric")
	exp, ok := got["exp"].(float64)
	require.True(t, ok, "exp should be numeric")
	assert.Equal(t, domain.SessionLifetime.Seconds(), exp-iat)
}

func TestSessionSigner_Expiry(t *testing.T) {
	ctx := context.Background()
	signer := newSessionSigner(LiteralSecret(testSessionSecret))
	now := time.Now()

	tests := []struct {
		name     string
		signedAt time.Time
		wantErr  bool
	}{
		{name: "fresh", signedAt: now, wantErr: false},
		{name: "23 hours old", signedAt: now.Add(-23 * time.Hour), wantErr: false},
		{name: "25 hours old", signedAt: now.Add(-25 * time.Hour), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer.now = func() time.Time { return tt.signedAt }
			credential, err := signer.SignCredential(ctx, domain.Payload{"tenant_id": "tenant-1"})
			require.NoError(t, err)

			signer.now = func() time.Time { return now }
			_, err = signer.VerifyCredential(ctx, credential)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidCredential)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSessionSigner_Rejects(t *testing.T) {
	ctx := context.Background()
	signer := newSessionSigner(LiteralSecret(testSessionSecret))

	credential, err := signer.SignCredential(ctx, domain.Payload{"tenant_id": "tenant-1"})
	require.NoError(t, err)

	parts := strings.Split(credential, ".")
	sig := []byte(parts[2])
	if sig[10] == 'A' {
		sig[10] = 'B'
	} else {
		sig[10] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	forged, err := newSessionSigner(LiteralSecret("another-secret")).
		SignCredential(ctx, domain.Payload{"tenant_id": "tenant-1"})
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"tenant_id": "tenant-1",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant_id": "tenant-1",
	}).SignedString([]byte(testSessionSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"tampered signature": tampered,
		"wrong secret":       forged,
		"alg none":           unsigned,
		"missing exp":        noExp,
		"malformed":          "not-a-credential",
		"empty":              "",
	}
	for name, credential := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := signer.VerifyCredential(ctx, credential)
			assert.ErrorIs(t, err, domain.ErrInvalidCredential)
		})
	}
}

func TestSessionSigner_ConcurrentWarmUpUnwrapsOnce(t *testing.T) {
	ctx := context.Background()
	provider := newFakeKeyProvider()
	provider.unwrapDelay = 50 * time.Millisecond

	plaintext := []byte("0123456789abcdef0123456789abcdef")
	wrapped := base64.StdEncoding.EncodeToString(provider.wrap(plaintext))
	signer := newSessionSigner(WrappedSecret{Provider: provider, Wrapped: wrapped})

	const workers = 16
	credentials := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			credentials[i], errs[i] = signer.SignCredential(ctx, domain.Payload{"tenant_id": "tenant-1"})
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, int64(1), provider.unwraps.Load())

	// セッション秘密鍵はアンラップした平文のbase64表現
	verifier := newSessionSigner(LiteralSecret(base64.StdEncoding.EncodeToString(plaintext)))
	for _, credential := range credentials {
		_, err := verifier.VerifyCredential(ctx, credential)
		assert.NoError(t, err)
	}

	// 2回目以降はキャッシュから解決する
	_, err := signer.VerifyCredential(ctx, credentials[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), provider.unwraps.Load())
}

func TestSessionSigner_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	provider := newFakeKeyProvider()
	wrapped := base64.StdEncoding.EncodeToString(provider.wrap([]byte("session-key")))
	signer := newSessionSigner(WrappedSecret{Provider: provider, Wrapped: wrapped})

	provider.unwrapErr = errors.New("kms unavailable")
	_, err := signer.SignCredential(ctx, domain.Payload{"tenant_id": "tenant-1"})
	require.Error(t, err)

	provider.unwrapErr = nil
	credential, err := signer.SignCredential(ctx, domain.Payload{"tenant_id": "tenant-1"})
	require.NoError(t, err)

	_, err = signer.VerifyCredential(ctx, credential)
	require.NoError(t, err)
	assert.Equal(t, int64(2), provider.unwraps.Load())
}

func TestWrappedSecret_InvalidEncoding(t *testing.T) {
	provider := newFakeKeyProvider()
	_, err := WrappedSecret{Provider: provider, Wrapped: "%%%"}.Resolve(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int64(0), provider.unwraps.Load())
}

func TestLiteralSecret_Empty(t *testing.T) {
	_, err := LiteralSecret(nil).Resolve(context.Background())
	assert.Error(t, err)
}

func TestSessionSigner_CancelledWarmUpDoesNotFailOtherCallers(t *testing.T) {
	provider := newFakeKeyProvider()
	provider.unwrapDelay = 100 * time.Millisecond
	wrapped := base64.StdEncoding.EncodeToString(provider.wrap([]byte("session-key")))
	signer := newSessionSigner(WrappedSecret{Provider: provider, Wrapped: wrapped})

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := signer.SignCredential(firstCtx, domain.Payload{"tenant_id": "tenant-1"})
		firstErr <- err
	}()

	// 初回の解決が始まってから2番目の呼び出しを合流させる
	require.Eventually(t, func() bool { return provider.unwraps.Load() == 1 }, time.Second, time.Millisecond)
	secondErr := make(chan error, 1)
	go func() {
		_, err := signer.SignCredential(context.Background(), domain.Payload{"tenant_id": "tenant-2"})
		secondErr <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-firstErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, <-secondErr)
	assert.Equal(t, int64(1), provider.unwraps.Load())

	// 離脱した呼び出し元の解決結果もキャッシュされる
	_, err = signer.SignCredential(context.Background(), domain.Payload{"tenant_id": "tenant-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), provider.unwraps.Load())
}

func TestSessionSigner_PayloadTypesAfterRoundTrip(t *testing.T) {
	ctx := context.Background()
	signer := newSessionSigner(LiteralSecret(testSessionSecret))

	credential, err := signer.SignCredential(ctx, domain.Payload{
		"tenant_id": "tenant-1",
		"level":     3,
		"scopes":    []string{"read"},
		"meta":      map[string]any{"region": "ap-northeast-1"},
	})
	require.NoError(t, err)

	got, err := signer.VerifyCredential(ctx, credential)
	require.NoError(t, err)
	assert.Equal(t, float64(3), got["level"])
	assert.Equal(t, []any{"read"}, got["scopes"])
	assert.Equal(t, map[string]any{"region": "ap-northeast-1"}, got["meta"])
}

func TestSessionSigner_VerifyResolveFailure(t *testing.T) {
	provider := newFakeKeyProvider()
	provider.unwrapErr = fmt.Errorf("%w: kms unavailable", domain.ErrProvider)
	wrapped := base64.StdEncoding.EncodeToString(provider.wrap([]byte("session-key")))
	signer := newSessionSigner(WrappedSecret{Provider: provider, Wrapped: wrapped})

	_, err := signer.VerifyCredential(context.Background(), "a.b.c")
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredential)
}
