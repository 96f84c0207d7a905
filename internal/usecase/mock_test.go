package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tenant-key-service/internal/domain"
)

// fakeKeyProvider はテスト用のインメモリ鍵管理システム。
// ラップされた鍵はランダムなハンドルで、マスター鍵ごとに管理する。
type fakeKeyProvider struct {
	mu          sync.Mutex
	keys        map[string][]byte
	generateErr error
	unwrapErr   error
	unwrapDelay time.Duration
	unwraps     atomic.Int64
}

func newFakeKeyProvider() *fakeKeyProvider {
	return &fakeKeyProvider{keys: make(map[string][]byte)}
}

func (f *fakeKeyProvider) GenerateDataKey(ctx context.Context, ref domain.MasterKeyRef, spec domain.KeySpec) (*domain.DataKey, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	plaintext := make([]byte, spec.Size())
	handle := make([]byte, 16)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, err
	}
	if _, err := rand.Read(handle); err != nil {
		return nil, err
	}
	wrapped := append([]byte(string(ref)+":"), handle...)

	f.mu.Lock()
	f.keys[string(wrapped)] = append([]byte(nil), plaintext...)
	f.mu.Unlock()

	return &domain.DataKey{Plaintext: plaintext, Wrapped: wrapped}, nil
}

func (f *fakeKeyProvider) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	f.unwraps.Add(1)
	if f.unwrapDelay > 0 {
		select {
		case <-time.After(f.unwrapDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrProvider, ctx.Err())
		}
	}
	if f.unwrapErr != nil {
		return nil, f.unwrapErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	plaintext, ok := f.keys[string(wrapped)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown ciphertext", domain.ErrProvider)
	}
	return append([]byte(nil), plaintext...), nil
}

// wrap はテスト用にラップ済みの鍵を登録する。
func (f *fakeKeyProvider) wrap(plaintext []byte) []byte {
	handle := make([]byte, 16)
	_, _ = rand.Read(handle)
	f.mu.Lock()
	f.keys[string(handle)] = append([]byte(nil), plaintext...)
	f.mu.Unlock()
	return handle
}

// mockTokenRepository はテスト用のモックリポジトリ。
type mockTokenRepository struct {
	existsResult bool
	existsErr    error
	createErr    error
	findResult   *domain.TenantToken
	findErr      error
	created      []*domain.TenantToken
}

func (m *mockTokenRepository) ExistsByTenantID(ctx context.Context, tenantID string) (bool, error) {
	return m.existsResult, m.existsErr
}

func (m *mockTokenRepository) Create(ctx context.Context, token *domain.TenantToken) error {
	if m.createErr != nil {
		return m.createErr
	}
	token.ID = fmt.Sprintf("id-%d", len(m.created)+1)
	token.CreatedAt = time.Now()
	m.created = append(m.created, token)
	return nil
}

func (m *mockTokenRepository) FindByTenantID(ctx context.Context, tenantID string) (*domain.TenantToken, error) {
	return m.findResult, m.findErr
}
