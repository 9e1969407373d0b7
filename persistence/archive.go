// persistence/archive.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/undercover/config"
	"github.com/wfunc/undercover/models"
)

// Archive 保存已结束的对局。它从不保存进行中的房间状态
type Archive interface {
	SaveGameRecord(ctx context.Context, record models.GameRecord) error
	// RecentGames returns up to limit records, newest first.
	RecentGames(ctx context.Context, limit int) ([]models.GameRecord, error)
	// WinCounts counts archived games per winning side.
	WinCounts(ctx context.Context) (map[models.Winner]int64, error)
	Close() error
}

var ErrInvalidLimit = errors.New("limit must be positive")

// Open builds the archive selected by cfg.Driver.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Archive, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(defaultMemoryCapacity), nil
	case "gorm":
		return NewGormPostgreSQL(cfg.Postgres.DSN())
	case "postgres":
		return NewPostgreSQL(ctx, cfg.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}
