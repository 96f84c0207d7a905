package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"tenant-key-service/internal/domain"
)

// MigrationRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	EnsureTable(ctx context.Context) error
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	// RecordMigration は適用履歴を記録する。txがnilでない場合はtx上で記録する。
	RecordMigration(ctx context.Context, tx *gorm.DB, migration *domain.Migration) error
}

// MigrationService はトークン登録テーブルのスキーマ移行を行う。
// マイグレーションファイルは files 内の「ダイアレクト名/{version}_{name}.sql」から読み込む。
type MigrationService struct {
	repo  MigrationRepository
	db    *gorm.DB
	files fs.FS
}

// NewMigrationService は新しいMigrationServiceを生成する。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, files fs.FS) *MigrationService {
	return &MigrationService{
		repo:  repo,
		db:    db,
		files: files,
	}
}

// ApplyMigrations は未適用マイグレーションをバージョン順に実行し、適用した件数を返す。
// 適用済みのファイルが変更されている場合は何も実行せずにエラーを返す。
func (s *MigrationService) ApplyMigrations(ctx context.Context) (int, error) {
	migrations, err := s.status(ctx, "apply_migrations")
	if err != nil {
		return 0, err
	}

	for _, m := range migrations {
		if m.Status == domain.MigrationStatusModified {
			slog.ErrorContext(ctx, "applied migration has been modified",
				"operation", "apply_migrations",
				"version", m.Version,
				"path", m.Path,
			)
			return 0, fmt.Errorf("%w: version %s", domain.ErrMigrationChecksumMismatch, m.Version)
		}
	}

	applied := 0
	for _, m := range migrations {
		if m.Status != domain.MigrationStatusPending {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "apply_migrations",
				"version", m.Version,
				"error", err,
			)
			return applied, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, m.Version, err)
		}
		slog.InfoContext(ctx, "applied migration",
			"operation", "apply_migrations",
			"version", m.Version,
			"name", m.Name,
		)
		applied++
	}
	return applied, nil
}

// GetMigrationStatus は全マイグレーションの適用状況をバージョン順に返す。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	return s.status(ctx, "get_migration_status")
}

// status はファイルと適用履歴を突き合わせて各マイグレーションの状態を決める。
func (s *MigrationService) status(ctx context.Context, operation string) ([]*domain.Migration, error) {
	if err := s.repo.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensuring migration history table: %w", err)
	}

	migrations, err := s.scan()
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan migration files",
			"operation", operation,
			"error", err,
		)
		return nil, err
	}

	history, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching applied migrations: %w", err)
	}
	applied := make(map[string]*domain.Migration, len(history))
	for _, h := range history {
		applied[h.Version] = h
	}

	for _, m := range migrations {
		h, ok := applied[m.Version]
		if !ok {
			continue
		}
		m.AppliedAt = h.AppliedAt
		m.Status = domain.MigrationStatusApplied
		// チェックサム未記録の履歴は検証しない
		if h.Checksum != "" && h.Checksum != m.Checksum {
			m.Status = domain.MigrationStatusModified
		}
	}
	return migrations, nil
}

// scan は接続先ダイアレクトのディレクトリから.sqlファイルを読み込む。
func (s *MigrationService) scan() ([]*domain.Migration, error) {
	dir := s.db.Dialector.Name()
	entries, err := fs.ReadDir(s.files, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no migrations for dialect %q", domain.ErrMigrationFileNotFound, dir)
		}
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []*domain.Migration
	numbers := make(map[*domain.Migration]uint64)
	seen := make(map[uint64]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		number, _ := strconv.ParseUint(version, 10, 64)
		if prev, dup := seen[number]; dup {
			return nil, fmt.Errorf("%w: version %s used by both %s and %s", domain.ErrInvalidMigrationFile, version, prev, entry.Name())
		}
		seen[number] = entry.Name()

		p := path.Join(dir, entry.Name())
		body, err := fs.ReadFile(s.files, p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		sum := sha256.Sum256(body)

		m := &domain.Migration{
			Version:  version,
			Name:     name,
			Path:     p,
			Checksum: hex.EncodeToString(sum[:]),
			Status:   domain.MigrationStatusPending,
		}
		numbers[m] = number
		migrations = append(migrations, m)
	}

	// 桁数が揃っていなくても 9 → 10 の順に並べる
	sort.Slice(migrations, func(i, j int) bool {
		return numbers[migrations[i]] < numbers[migrations[j]]
	})
	return migrations, nil
}

// parseMigrationFileName はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {version}_{name}.sql (例: 001_create_tenant_tokens.sql)
// バージョンは数字のみで構成される必要がある。
func parseMigrationFileName(filename string) (version, name string, err error) {
	parts := strings.SplitN(strings.TrimSuffix(filename, ".sql"), "_", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}
	if _, err := strconv.ParseUint(parts[0], 10, 64); err != nil {
		return "", "", fmt.Errorf("%w: %s (version must be numeric)", domain.ErrInvalidMigrationFile, filename)
	}
	return parts[0], parts[1], nil
}

// applyMigration は単一のマイグレーションと履歴の記録を1トランザクションで実行する。
// MySQLはDDLで暗黙コミットされるため、DDLの途中失敗は手動での復旧が必要になる。
func (s *MigrationService) applyMigration(ctx context.Context, m *domain.Migration) error {
	body, err := fs.ReadFile(s.files, m.Path)
	if err != nil {
		return fmt.Errorf("reading migration file: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, stmt := range splitStatements(string(body)) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("executing statement %d: %w", i+1, err)
			}
		}
		return s.repo.RecordMigration(ctx, tx, m)
	})
}

// splitStatements はSQL本文を文単位に分割する。
// MySQLドライバは既定で複数文の一括実行を受け付けない。
func splitStatements(sql string) []string {
	var stmts []string
	for _, part := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
