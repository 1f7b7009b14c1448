// Package storage 物品记录的同步目标: 远端REST表和本地SQLite
package storage

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/itemsync/internal/models"
)

// Sink 同步目标
type Sink interface {
	Upsert(ctx context.Context, record *models.ItemRecord) error
	List(ctx context.Context, limit int) ([]models.ItemRecord, error)
	Close() error
}

// NewSink 根据配置创建同步目标
func NewSink(config models.SyncConfig) (Sink, error) {
	switch config.Sink {
	case models.SinkREST:
		return NewRESTSink(config), nil
	case models.SinkSQLite:
		return NewSQLiteSink(config.SQLitePath)
	default:
		return nil, fmt.Errorf("无效的同步目标: %s", config.Sink)
	}
}
