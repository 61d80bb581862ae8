package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS position_states (
	symbol     TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLiteStore 基于 SQLite 的整文档状态库：每个币种一行 JSON。
// Save 在单个事务内全量替换，保证文档级一致性。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开（必要时创建）状态库
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开状态库 %s 失败: %w", path, err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化状态表失败: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load() (map[string]json.RawMessage, error) {
	rows, err := s.db.Query(`SELECT symbol, payload FROM position_states`)
	if err != nil {
		return nil, fmt.Errorf("读取持仓状态失败: %w", err)
	}
	defer rows.Close()

	states := make(map[string]json.RawMessage)
	for rows.Next() {
		var symbol, payload string
		if err := rows.Scan(&symbol, &payload); err != nil {
			return nil, fmt.Errorf("扫描持仓状态失败: %w", err)
		}
		states[symbol] = json.RawMessage(payload)
	}
	return states, rows.Err()
}

func (s *SQLiteStore) Save(states map[string]json.RawMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM position_states`); err != nil {
		return fmt.Errorf("清空旧状态失败: %w", err)
	}

	now := time.Now().UTC()
	for symbol, payload := range states {
		if _, err := tx.Exec(
			`INSERT INTO position_states (symbol, payload, updated_at) VALUES (?, ?, ?)`,
			symbol, string(payload), now,
		); err != nil {
			return fmt.Errorf("写入 %s 状态失败: %w", symbol, err)
		}
	}

	return tx.Commit()
}

// Close 关闭底层数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
