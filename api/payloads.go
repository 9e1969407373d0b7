package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	maxNameLength        = 20
	maxDescriptionLength = 200
)

// RoomRef identifies the acting player and their room.
type RoomRef struct {
	RoomCode string `json:"roomCode" validate:"required,alphanum,max=16"`
	PlayerID string `json:"playerId" validate:"required,max=64"`
}

type CreateRoomPayload struct {
	RoomCode        string `json:"roomCode" validate:"omitempty,alphanum,max=16"`
	PlayerID        string `json:"playerId" validate:"required,max=64"`
	PlayerName      string `json:"playerName" validate:"notblank,max=20"`
	MaxPlayers      int    `json:"maxPlayers" validate:"omitempty,min=3,max=20"`
	UndercoverCount int    `json:"undercoverCount" validate:"omitempty,min=1,max=6"`
	Password        string `json:"password" validate:"max=32"`
	Mode            string `json:"mode" validate:"omitempty,oneof=online offline"`
}

type JoinRoomPayload struct {
	RoomRef
	PlayerName string `json:"playerName" validate:"notblank,max=20"`
	Password   string `json:"password" validate:"max=32"`
}

type RejoinRoomPayload struct {
	RoomRef
}

type LeaveRoomPayload struct {
	RoomRef
}

type StartGamePayload struct {
	RoomRef
}

type ResetGamePayload struct {
	RoomRef
}

type SubmitDescriptionPayload struct {
	RoomRef
	Description string `json:"description" validate:"notblank,max=200"`
}

type CastVotePayload struct {
	RoomRef
	TargetID string `json:"targetId" validate:"required,max=64"`
}

type ToggleWordSetterPayload struct {
	RoomRef
	TargetID string `json:"targetId" validate:"required,max=64"`
}

type SetWordPayload struct {
	RoomRef
	CivilianWord   string `json:"civilianWord" validate:"notblank,max=20"`
	UndercoverWord string `json:"undercoverWord" validate:"notblank,max=20"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}

// Validate checks a payload's struct tags. Failures wrap ErrInvalidPayload
// and name the first offending field.
func Validate(payload any) error {
	err := engine().Struct(payload)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		f := fields[0]
		return fmt.Errorf("%w: %s failed %q", ErrInvalidPayload, f.Namespace(), f.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
}
