// models/gorm_models.go
package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormGameRecord 对局归档表
type GormGameRecord struct {
	gorm.Model
	RoomCode       string         `gorm:"index;not null"`
	Mode           string         `gorm:"not null"`
	CivilianWord   string         `gorm:"not null"`
	UndercoverWord string         `gorm:"not null"`
	Winner         string         `gorm:"index;not null"`
	Rounds         int            `gorm:"default:0"`
	Players        datatypes.JSON `gorm:"type:jsonb;not null"`
	FinishedAt     time.Time      `gorm:"index"`
}

func (GormGameRecord) TableName() string {
	return "game_records"
}

// ToGorm converts a record to its table row.
func (r GameRecord) ToGorm() (GormGameRecord, error) {
	players, err := json.Marshal(r.Players)
	if err != nil {
		return GormGameRecord{}, err
	}
	return GormGameRecord{
		RoomCode:       r.RoomCode,
		Mode:           string(r.Mode),
		CivilianWord:   r.CivilianWord,
		UndercoverWord: r.UndercoverWord,
		Winner:         string(r.Winner),
		Rounds:         r.Rounds,
		Players:        datatypes.JSON(players),
		FinishedAt:     r.FinishedAt,
	}, nil
}

// Record converts a table row back into a GameRecord.
func (m GormGameRecord) Record() (GameRecord, error) {
	rec := GameRecord{
		RoomCode:       m.RoomCode,
		Mode:           Mode(m.Mode),
		CivilianWord:   m.CivilianWord,
		UndercoverWord: m.UndercoverWord,
		Winner:         Winner(m.Winner),
		Rounds:         m.Rounds,
		FinishedAt:     m.FinishedAt,
	}
	if len(m.Players) > 0 {
		if err := json.Unmarshal(m.Players, &rec.Players); err != nil {
			return GameRecord{}, err
		}
	}
	return rec, nil
}
