// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"time"

	"github.com/wfunc/undercover/logger"
	"github.com/wfunc/undercover/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// zapWriter 把 GORM 的日志转到全局 zap logger
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Log.Debugf(format, args...)
}

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	gormLogger := gormlogger.New(
		zapWriter{},
		gormlogger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormGameRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveGameRecord 保存游戏记录
func (p *GormPostgreSQL) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	row, err := record.ToGorm()
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Create(&row).Error
}

// RecentGames 按结束时间倒序读取
func (p *GormPostgreSQL) RecentGames(ctx context.Context, limit int) ([]models.GameRecord, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	var rows []models.GormGameRecord
	err := p.db.WithContext(ctx).
		Order("finished_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.GameRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// WinCounts 按胜方统计局数
func (p *GormPostgreSQL) WinCounts(ctx context.Context) (map[models.Winner]int64, error) {
	var rows []struct {
		Winner string
		Total  int64
	}
	err := p.db.WithContext(ctx).
		Model(&models.GormGameRecord{}).
		Select("winner, COUNT(*) AS total").
		Group("winner").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[models.Winner]int64, len(rows))
	for _, r := range rows {
		out[models.Winner(r.Winner)] = r.Total
	}
	return out, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
