package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
)

//go:embed schema_sqlite.sql
var sqliteSchemaFS embed.FS

// EnsureSQLiteSchema 在首次启动时建表；schema 全部使用 IF NOT EXISTS，可重复执行。
func EnsureSQLiteSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("db 为空")
	}
	b, err := sqliteSchemaFS.ReadFile("schema_sqlite.sql")
	if err != nil {
		return fmt.Errorf("读取 sqlite schema: %w", err)
	}
	stmts := splitSQLStatements(string(b))
	for i, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("初始化 sqlite schema (stmt %d/%d): %w", i+1, len(stmts), err)
		}
	}
	return nil
}
