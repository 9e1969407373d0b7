package api

import (
	"errors"

	"github.com/wfunc/undercover/room"
)

// ErrInvalidPayload wraps every validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

var errorMessages = []struct {
	err error
	msg Message
}{
	{room.ErrRoomNotFound, MsgRoomNotFound},
	{room.ErrRoomFull, MsgRoomFull},
	{room.ErrInvalidPassword, MsgInvalidPassword},
	{room.ErrGameAlreadyStarted, MsgGameAlreadyStarted},
	{room.ErrUnknownPlayer, MsgUnknownPlayer},
	{room.ErrWordNotSet, MsgWordNotSet},
	{room.ErrWordSetterConflict, MsgWordSetterConflict},
	{room.ErrRoomCodeConflict, MsgRoomCodeConflict},
	{room.ErrPlayerExists, MsgPlayerExists},
	{room.ErrInvalidPhase, MsgInvalidPhase},
	{room.ErrNotHost, MsgNotHost},
	{room.ErrNotYourTurn, MsgNotYourTurn},
	{room.ErrInvalidTarget, MsgInvalidTarget},
	{room.ErrNotEnoughPlayers, MsgNotEnoughPlayers},
	{room.ErrNoWordSetter, MsgNoWordSetter},
	{room.ErrNotWordSetter, MsgNotWordSetter},
	{room.ErrInvalidWordPair, MsgInvalidWordPair},
	{ErrInvalidPayload, MsgInvalidPayload},
}

// MessageFor maps an error to its wire code. Anything unrecognised is an
// INTERNAL_ERROR.
func MessageFor(err error) Message {
	for _, e := range errorMessages {
		if errors.Is(err, e.err) {
			return e.msg
		}
	}
	return MsgInternalError
}
