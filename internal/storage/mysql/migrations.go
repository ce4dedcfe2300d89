package mysql

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"OpenMCP-Dialog/deploy/migrations"
	xerrors "OpenMCP-Dialog/internal/errors"
)

// embeddedMigrations 是 Migrate 默认使用的脚本集合。
var embeddedMigrations fs.FS = migrations.Files

const schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`

type migrationFile struct {
	version    string
	name       string
	statements []string
}

// Migrate 应用 deploy/migrations 内嵌的全部建表脚本。
func Migrate(ctx context.Context, db *sql.DB) error {
	return MigrateFS(ctx, db, embeddedMigrations)
}

// MigrateFS 按版本顺序执行 fsys 根目录下尚未应用的 *.sql 脚本。
// 版本号取文件名中第一个下划线之前的部分，每个脚本在独立事务中执行。
func MigrateFS(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	if db == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "数据库连接未初始化")
	}
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 schema_migrations 表失败")
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	files, err := loadMigrationFiles(fsys)
	if err != nil {
		return err
	}
	for _, file := range files {
		if applied[file.version] {
			continue
		}
		if err := applyMigration(ctx, db, file); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询已应用的迁移版本失败")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析迁移版本失败")
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历迁移版本失败")
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, file migrationFile) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启迁移事务失败")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range file.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("执行迁移 %s 失败", file.name))
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, file.version, time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("记录迁移 %s 失败", file.name))
	}
	if err = tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交迁移事务失败")
	}
	return nil
}

func loadMigrationFiles(fsys fs.FS) ([]migrationFile, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取迁移目录失败")
	}

	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("读取迁移文件 %s 失败", name))
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		files = append(files, migrationFile{
			version:    migrationVersion(name),
			name:       name,
			statements: statements,
		})
	}
	slices.SortFunc(files, func(a, b migrationFile) int {
		if c := cmp.Compare(a.version, b.version); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	return files, nil
}

// splitSQLStatements 按分号拆分脚本，忽略 "--" 开头的整行注释。
func splitSQLStatements(content string) []string {
	var kept strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept.WriteString(line)
		kept.WriteByte('\n')
	}

	var statements []string
	for _, stmt := range strings.Split(kept.String(), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

func migrationVersion(name string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	if version, _, ok := strings.Cut(base, "_"); ok && version != "" {
		return version
	}
	return base
}
