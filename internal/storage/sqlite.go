package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink 本地SQLite导出, 与REST目标相同的合并语义
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink 打开数据库并执行迁移
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	utils.Debugf("SQLite同步目标: %s", dbPath)
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS game_items (
			game_id INTEGER PRIMARY KEY,
			name_en TEXT NOT NULL,
			icon_url TEXT,
			description TEXT,
			source_url TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

// Upsert 插入或按game_id合并
func (s *SQLiteSink) Upsert(ctx context.Context, record *models.ItemRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_items (game_id, name_en, icon_url, description, source_url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			name_en = excluded.name_en,
			icon_url = excluded.icon_url,
			description = excluded.description,
			source_url = excluded.source_url,
			updated_at = CURRENT_TIMESTAMP
	`, record.GameID, record.NameEnglish, record.IconURL, record.Description, record.SourceURL)
	if err != nil {
		return fmt.Errorf("upsert game_id=%d: %w", record.GameID, err)
	}
	return nil
}

// List 按game_id升序读取, limit<=0表示全部
func (s *SQLiteSink) List(ctx context.Context, limit int) ([]models.ItemRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, name_en, icon_url, description, source_url
		FROM game_items ORDER BY game_id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ItemRecord
	for rows.Next() {
		var r models.ItemRecord
		if err := rows.Scan(&r.GameID, &r.NameEnglish, &r.IconURL, &r.Description, &r.SourceURL); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close 关闭数据库
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
