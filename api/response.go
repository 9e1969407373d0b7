// Package api holds the wire envelope, its message codes and the typed
// action payloads.
package api

// Message 是响应中的枚举消息码
type Message string

// 成功消息
const (
	MsgRoomCreated          Message = "ROOM_CREATED"
	MsgPlayerJoined         Message = "PLAYER_JOINED"
	MsgPlayerRejoined       Message = "PLAYER_REJOINED"
	MsgPlayerLeft           Message = "PLAYER_LEFT"
	MsgGameStarted          Message = "GAME_STARTED"
	MsgDescriptionSubmitted Message = "DESCRIPTION_SUBMITTED"
	MsgVoteCasted           Message = "VOTE_CASTED"
	MsgGameRestarted        Message = "GAME_RESTARTED"
	MsgWordSetterChanged    Message = "WORD_SETTER_CHANGED"
	MsgWordSet              Message = "WORD_SET"
	MsgRoomList             Message = "ROOM_LIST"
	MsgGameList             Message = "GAME_LIST"
	MsgPong                 Message = "PONG"
)

// 失败消息
const (
	MsgRoomNotFound       Message = "ROOM_NOT_FOUND"
	MsgRoomFull           Message = "ROOM_FULL"
	MsgInvalidPassword    Message = "INVALID_PASSWORD"
	MsgGameAlreadyStarted Message = "GAME_ALREADY_STARTED"
	MsgUnknownPlayer      Message = "UNKNOWN_PLAYER"
	MsgWordNotSet         Message = "WORD_NOT_SET"
	MsgWordSetterConflict Message = "WORD_SETTER_CONFLICT"
	MsgRoomCodeConflict   Message = "ROOM_CODE_CONFLICT"
	MsgPlayerExists       Message = "PLAYER_EXISTS"
	MsgInvalidPhase       Message = "INVALID_PHASE"
	MsgNotHost            Message = "NOT_HOST"
	MsgNotYourTurn        Message = "NOT_YOUR_TURN"
	MsgInvalidTarget      Message = "INVALID_TARGET"
	MsgNotEnoughPlayers   Message = "NOT_ENOUGH_PLAYERS"
	MsgNoWordSetter       Message = "NO_WORD_SETTER"
	MsgNotWordSetter      Message = "NOT_WORD_SETTER"
	MsgInvalidWordPair    Message = "INVALID_WORD_PAIR"
	MsgInvalidPayload     Message = "INVALID_PAYLOAD"
	MsgUnknownEvent       Message = "UNKNOWN_EVENT"
	MsgRateLimited        Message = "RATE_LIMITED"
	MsgInternalError      Message = "INTERNAL_ERROR"
)

// Response is the acknowledgement envelope for every action.
type Response struct {
	Success bool    `json:"success"`
	Message Message `json:"message"`
	Data    any     `json:"data,omitempty"`
}

func OK(msg Message, data any) Response {
	return Response{Success: true, Message: msg, Data: data}
}

func Fail(msg Message) Response {
	return Response{Message: msg}
}
