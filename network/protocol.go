package network

// 客户端 -> 服务端事件
const (
	EventHeartbeat         = "heartbeat"
	EventCreateRoom        = "create-room"
	EventJoinRoom          = "join-room"
	EventRejoinRoom        = "rejoin-room"
	EventLeaveRoom         = "leave-room"
	EventStartGame         = "start-game"
	EventSubmitDescription = "submit-description"
	EventCastVote          = "cast-vote"
	EventResetGame         = "reset-game"
	EventToggleWordSetter  = "toggle-word-setter"
	EventSetWord           = "set-word"
	EventListRooms         = "list-rooms"
)

// 服务端 -> 客户端：应答使用 EventAck，房间推送使用 room.Event 的取值
const (
	EventAck = "ack"
)
