package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contctl/internal/ledger"

	_ "modernc.org/sqlite"
)

// SQLiteRepository 基于 SQLite (WAL 模式) 的待办快照仓库
// SQLiteRepository is the SQLite-backed (WAL mode) todo snapshot repository.
// It implements ledger.Repository; the ledger itself stays in-memory and
// treats every write here as best-effort.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

// NewSQLiteRepository 创建并初始化数据库
// NewSQLiteRepository creates and initializes the database
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	repo := &SQLiteRepository{db: db, path: dbPath}
	if err := repo.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS todos (
		session_id   TEXT NOT NULL,
		id           TEXT NOT NULL,
		position     INTEGER NOT NULL,
		description  TEXT NOT NULL,
		source       TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		assigned_to  TEXT NOT NULL DEFAULT '',
		block_reason TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		completed_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY(session_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_todos_session ON todos(session_id, position);
	`
	_, err := r.db.Exec(schema)
	return err
}

// SaveTodos 以快照方式整体替换会话的待办
// SaveTodos replaces the session's todos with the given snapshot
func (r *SQLiteRepository) SaveTodos(sessionID string, items []ledger.TodoItem) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM todos WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear todos: %w", err)
	}
	for i, item := range items {
		completedAt := ""
		if item.CompletedAt != nil {
			completedAt = item.CompletedAt.UTC().Format(time.RFC3339Nano)
		}
		_, err := tx.Exec(
			`INSERT INTO todos (session_id, id, position, description, source, status, assigned_to, block_reason, created_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, item.ID, i, item.Description, string(item.Source), string(item.Status),
			item.AssignedTo, item.BlockReason, item.CreatedAt.UTC().Format(time.RFC3339Nano), completedAt,
		)
		if err != nil {
			return fmt.Errorf("insert todo %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

// LoadTodos 按插入顺序读取会话待办
// LoadTodos reads the session's todos in insertion order
func (r *SQLiteRepository) LoadTodos(sessionID string) ([]ledger.TodoItem, error) {
	rows, err := r.db.Query(
		`SELECT id, description, source, status, assigned_to, block_reason, created_at, completed_at
		 FROM todos WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ledger.TodoItem
	for rows.Next() {
		var item ledger.TodoItem
		var source, status, createdAt, completedAt string
		if err := rows.Scan(&item.ID, &item.Description, &source, &status,
			&item.AssignedTo, &item.BlockReason, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		item.Source = ledger.Source(source)
		item.Status = ledger.Status(status)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			item.CreatedAt = t
		}
		if completedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, completedAt); err == nil {
				item.CompletedAt = &t
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DeleteTodos 删除会话的全部待办
// DeleteTodos removes every todo of the session
func (r *SQLiteRepository) DeleteTodos(sessionID string) error {
	_, err := r.db.Exec(`DELETE FROM todos WHERE session_id = ?`, sessionID)
	return err
}

// Sessions 返回有快照的会话 id 列表
// Sessions lists session ids that have snapshots
func (r *SQLiteRepository) Sessions() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT session_id FROM todos ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close 关闭数据库连接 / Close the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
