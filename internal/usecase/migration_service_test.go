package usecase

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tenant-key-service/internal/domain"
)

// mockMigrationRepository は適用履歴をメモリに保持する。
type mockMigrationRepository struct {
	applied     map[string]*domain.Migration
	ensureErr   error
	recordError error
}

func newMockMigrationRepository() *mockMigrationRepository {
	return &mockMigrationRepository{applied: make(map[string]*domain.Migration)}
}

func (m *mockMigrationRepository) EnsureTable(ctx context.Context) error {
	return m.ensureErr
}

func (m *mockMigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.Migration, error) {
	result := make([]*domain.Migration, 0, len(m.applied))
	for _, migration := range m.applied {
		result = append(result, migration)
	}
	return result, nil
}

func (m *mockMigrationRepository) RecordMigration(ctx context.Context, tx *gorm.DB, migration *domain.Migration) error {
	if m.recordError != nil {
		return m.recordError
	}
	now := time.Now()
	m.applied[migration.Version] = &domain.Migration{
		Version:   migration.Version,
		Name:      migration.Name,
		Checksum:  migration.Checksum,
		AppliedAt: &now,
		Status:    domain.MigrationStatusApplied,
	}
	return nil
}

// markApplied はファイルのチェックサムで適用済み履歴を登録する。
func (m *mockMigrationRepository) markApplied(t *testing.T, svc *MigrationService, version string) {
	t.Helper()
	migrations, err := svc.scan()
	require.NoError(t, err)
	for _, migration := range migrations {
		if migration.Version == version {
			require.NoError(t, m.RecordMigration(context.Background(), nil, migration))
			return
		}
	}
	t.Fatalf("migration %s not found", version)
}

func testMigrationFS() fstest.MapFS {
	return fstest.MapFS{
		"sqlite/001_create_users.sql":    {Data: []byte("-- users\nCREATE TABLE users (id INT);\n")},
		"sqlite/002_create_posts.sql":    {Data: []byte("CREATE TABLE posts (id INT);\nCREATE INDEX idx_posts_id ON posts (id);\n")},
		"sqlite/003_create_comments.sql": {Data: []byte("CREATE TABLE comments (id INT);")},
		"sqlite/README.md":               {Data: []byte("not a migration")},
		"mysql/001_create_users.sql":     {Data: []byte("CREATE TABLE users (id INT) ENGINE=InnoDB;")},
	}
}

func setupMigrationTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func tableExists(t *testing.T, db *gorm.DB, table string) bool {
	t.Helper()
	var count int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count).Error)
	return count == 1
}

func TestMigrationService_ApplyMigrations(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()
	svc := NewMigrationService(repo, db, testMigrationFS())

	count, err := svc.ApplyMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, table := range []string{"users", "posts", "comments"} {
		assert.True(t, tableExists(t, db, table), "table %s was not created", table)
	}
	require.Len(t, repo.applied, 3)
	assert.Len(t, repo.applied["001"].Checksum, 64)

	// 2回目は何も適用しない
	count, err = svc.ApplyMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMigrationService_ApplyMigrations_AlreadyApplied(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()
	svc := NewMigrationService(repo, db, testMigrationFS())

	repo.markApplied(t, svc, "001")
	repo.markApplied(t, svc, "002")

	count, err := svc.ApplyMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, tableExists(t, db, "users"))
	assert.True(t, tableExists(t, db, "comments"))
}

func TestMigrationService_ApplyMigrations_InvalidSQL(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()

	files := testMigrationFS()
	files["sqlite/004_invalid.sql"] = &fstest.MapFile{Data: []byte("INVALID SQL SYNTAX;")}
	svc := NewMigrationService(repo, db, files)

	count, err := svc.ApplyMigrations(ctx)
	assert.ErrorIs(t, err, domain.ErrMigrationFailed)
	assert.Equal(t, 3, count)
	assert.NotContains(t, repo.applied, "004")
}

func TestMigrationService_ApplyMigrations_RecordFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()
	repo.recordError = errors.New("history table locked")
	svc := NewMigrationService(repo, db, testMigrationFS())

	_, err := svc.ApplyMigrations(ctx)
	assert.ErrorIs(t, err, domain.ErrMigrationFailed)
	assert.False(t, tableExists(t, db, "users"))
}

func TestMigrationService_ApplyMigrations_Modified(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()
	svc := NewMigrationService(repo, db, testMigrationFS())

	now := time.Now()
	repo.applied["001"] = &domain.Migration{
		Version:   "001",
		Checksum:  "0000000000000000000000000000000000000000000000000000000000000000",
		AppliedAt: &now,
	}

	count, err := svc.ApplyMigrations(ctx)
	assert.ErrorIs(t, err, domain.ErrMigrationChecksumMismatch)
	assert.Equal(t, 0, count)
	assert.False(t, tableExists(t, db, "posts"))
}

func TestMigrationService_GetMigrationStatus(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()
	svc := NewMigrationService(repo, db, testMigrationFS())

	repo.markApplied(t, svc, "001")
	now := time.Now()
	repo.applied["002"] = &domain.Migration{Version: "002", Checksum: "stale", AppliedAt: &now}

	migrations, err := svc.GetMigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	expected := []struct {
		version string
		name    string
		status  domain.MigrationStatus
	}{
		{"001", "create_users", domain.MigrationStatusApplied},
		{"002", "create_posts", domain.MigrationStatusModified},
		{"003", "create_comments", domain.MigrationStatusPending},
	}
	for i, want := range expected {
		assert.Equal(t, want.version, migrations[i].Version)
		assert.Equal(t, want.name, migrations[i].Name)
		assert.Equal(t, want.status, migrations[i].Status, "migration %s", want.version)
		assert.Equal(t, "sqlite/"+want.version+"_"+want.name+".sql", migrations[i].Path)
	}
	assert.NotNil(t, migrations[0].AppliedAt)
	assert.Nil(t, migrations[2].AppliedAt)
}

func TestMigrationService_Scan_Errors(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationTestDB(t)

	tests := []struct {
		name  string
		files fstest.MapFS
		want  error
	}{
		{
			name:  "no directory for dialect",
			files: fstest.MapFS{"mysql/001_init.sql": {Data: []byte("SELECT 1;")}},
			want:  domain.ErrMigrationFileNotFound,
		},
		{
			name:  "bad file name",
			files: fstest.MapFS{"sqlite/init.sql": {Data: []byte("SELECT 1;")}},
			want:  domain.ErrInvalidMigrationFile,
		},
		{
			name:  "non-numeric version",
			files: fstest.MapFS{"sqlite/v1_init.sql": {Data: []byte("SELECT 1;")}},
			want:  domain.ErrInvalidMigrationFile,
		},
		{
			name: "same number with different padding",
			files: fstest.MapFS{
				"sqlite/1_a.sql":   {Data: []byte("SELECT 1;")},
				"sqlite/001_b.sql": {Data: []byte("SELECT 2;")},
			},
			want: domain.ErrInvalidMigrationFile,
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"sqlite/001_a.sql": {Data: []byte("SELECT 1;")},
				"sqlite/001_b.sql": {Data: []byte("SELECT 2;")},
			},
			want: domain.ErrInvalidMigrationFile,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewMigrationService(newMockMigrationRepository(), db, tt.files)
			_, err := svc.GetMigrationStatus(ctx)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMigrationService_OrdersVersionsNumerically(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()
	files := fstest.MapFS{
		"sqlite/10_add_index.sql":    {Data: []byte("CREATE INDEX idx_items_name ON items (name);")},
		"sqlite/9_create_items.sql":  {Data: []byte("CREATE TABLE items (id INT, name TEXT);")},
		"sqlite/2_create_owners.sql": {Data: []byte("CREATE TABLE owners (id INT);")},
	}
	svc := NewMigrationService(repo, db, files)

	migrations, err := svc.GetMigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, "2", migrations[0].Version)
	assert.Equal(t, "9", migrations[1].Version)
	assert.Equal(t, "10", migrations[2].Version)

	// 10 が 9 より先に走るとテーブルが存在せず失敗する
	count, err := svc.ApplyMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.True(t, tableExists(t, db, "items"))
}

func TestSplitStatements(t *testing.T) {
	sql := `-- header comment
CREATE TABLE a (id INT);

-- second
CREATE UNIQUE INDEX uk_a ON a (id);
`
	assert.Equal(t, []string{
		"CREATE TABLE a (id INT)",
		"CREATE UNIQUE INDEX uk_a ON a (id)",
	}, splitStatements(sql))
	assert.Empty(t, splitStatements("-- nothing\n\n"))
}
