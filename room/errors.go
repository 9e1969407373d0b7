package room

import (
	"errors"

	"github.com/wfunc/undercover/words"
)

// 所有错误都可由调用方处理，出错时房间状态不变
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room full")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrUnknownPlayer      = errors.New("unknown player")
	ErrWordNotSet         = errors.New("word pair not set")
	ErrWordSetterConflict = errors.New("another player is already the word setter")
	ErrRoomCodeConflict   = errors.New("room code already in use")
	ErrPlayerExists       = errors.New("player already in room")
	ErrInvalidPhase       = errors.New("action not allowed in current phase")
	ErrNotHost            = errors.New("only the host can do that")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrInvalidTarget      = errors.New("invalid vote target")
	ErrNotEnoughPlayers   = errors.New("not enough players")
	ErrNoWordSetter       = errors.New("no word setter in room")
	ErrNotWordSetter      = errors.New("only the word setter can set words")
	ErrInvalidWordPair    = words.ErrInvalidPair
)
