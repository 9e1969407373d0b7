// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动
	"github.com/wfunc/undercover/models"
)

const queryTimeout = 5 * time.Second

// PostgreSQL 基于 database/sql + lib/pq 的归档实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(ctx context.Context, dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化表结构，列与 GORM 迁移出的 game_records 兼容
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            room_code TEXT NOT NULL,
            mode TEXT NOT NULL,
            civilian_word TEXT NOT NULL,
            undercover_word TEXT NOT NULL,
            winner TEXT NOT NULL,
            rounds BIGINT DEFAULT 0,
            players JSONB NOT NULL,
            finished_at TIMESTAMPTZ
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_game_records_room_code ON game_records(room_code);
        CREATE INDEX IF NOT EXISTS idx_game_records_winner ON game_records(winner);
        CREATE INDEX IF NOT EXISTS idx_game_records_finished_at ON game_records(finished_at);
    `)
	return err
}

// SaveGameRecord 保存游戏记录
func (p *PostgreSQL) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
        INSERT INTO game_records (room_code, mode, civilian_word, undercover_word, winner, rounds, players, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err = p.db.ExecContext(ctx, query,
		record.RoomCode,
		string(record.Mode),
		record.CivilianWord,
		record.UndercoverWord,
		string(record.Winner),
		record.Rounds,
		players,
		record.FinishedAt)
	return err
}

// RecentGames 按结束时间倒序读取
func (p *PostgreSQL) RecentGames(ctx context.Context, limit int) ([]models.GameRecord, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
        SELECT room_code, mode, civilian_word, undercover_word, winner, rounds, players, finished_at
        FROM game_records
        WHERE deleted_at IS NULL
        ORDER BY finished_at DESC, id DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GameRecord
	for rows.Next() {
		var (
			rec        models.GameRecord
			mode, win  string
			players    []byte
			finishedAt sql.NullTime
		)
		if err := rows.Scan(&rec.RoomCode, &mode, &rec.CivilianWord, &rec.UndercoverWord, &win, &rec.Rounds, &players, &finishedAt); err != nil {
			return nil, err
		}
		rec.Mode = models.Mode(mode)
		rec.Winner = models.Winner(win)
		rec.FinishedAt = finishedAt.Time
		if err := json.Unmarshal(players, &rec.Players); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// WinCounts 按胜方统计局数
func (p *PostgreSQL) WinCounts(ctx context.Context) (map[models.Winner]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
        SELECT winner, COUNT(*) FROM game_records
        WHERE deleted_at IS NULL
        GROUP BY winner
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.Winner]int64)
	for rows.Next() {
		var (
			winner string
			total  int64
		)
		if err := rows.Scan(&winner, &total); err != nil {
			return nil, err
		}
		out[models.Winner(winner)] = total
	}
	return out, rows.Err()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
