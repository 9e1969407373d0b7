package server

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/wfunc/undercover/api"
	"github.com/wfunc/undercover/logger"
	"github.com/wfunc/undercover/network"
	"github.com/wfunc/undercover/room"
	"github.com/wfunc/undercover/services"
	"github.com/wfunc/undercover/session"
)

// 这些事件会改变大厅列表（人数、阶段、房间增减）
var lobbyEvents = map[room.Event]bool{
	room.EventRoomCreated:  true,
	room.EventPlayerJoined: true,
	room.EventPlayerLeft:   true,
	room.EventGameStarted:  true,
	room.EventGameEnded:    true,
	room.EventGameReset:    true,
}

func (s *GameServer) serveWebSocket() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Log.Infof("Failed to upgrade connection: %v", err)
			return
		}
		s.handleConnection(conn)
	}
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	if s.cfg.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.cfg.Heartbeat)
	}
	sess := session.NewSession(wsConn, s.limits.ActionsPerSecond, s.limits.Burst)
	s.sessionManager.Add(sess)
	s.monitor.IncConnections()

	logger.Log.Infow("connection opened", "remote", wsConn.RemoteAddr().String(), "session", sess.GetID())

	defer func() {
		s.sessionManager.Remove(sess.ID)
		s.monitor.DecConnections()
		s.detach(sess)
		_ = wsConn.Close()
		logger.Log.Infow("connection closed", "remote", wsConn.RemoteAddr().String(), "session", sess.GetID())
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		packet, err := wsConn.ReadPacket()
		if err != nil {
			if network.IsRecoverable(err) {
				logger.Log.Debugw("dropped frame", "session", sess.ID, "error", err)
				s.reply(sess, 0, api.Fail(api.MsgInvalidPayload))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.Debugw("read failed", "session", sess.ID, "error", err)
			}
			return
		}
		s.handlePacket(sess, packet)
	}
}

// handlePacket 应答请求者，然后把更新推送给房间里的每个在线玩家
func (s *GameServer) handlePacket(sess *session.Session, p *network.Packet) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Errorw("panic while handling packet",
				"event", p.Event,
				"session", sess.ID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			s.reply(sess, p.Ack, api.Fail(api.MsgInternalError))
		}
	}()

	sess.Touch()
	if p.Event == network.EventHeartbeat {
		s.reply(sess, p.Ack, api.OK(api.MsgPong, nil))
		return
	}
	if !sess.Allow() {
		s.reply(sess, p.Ack, api.Fail(api.MsgRateLimited))
		return
	}

	resp, u := s.dispatch(sess, p)
	s.reply(sess, p.Ack, resp)
	if u != nil {
		s.publish(u)
	}
}

func (s *GameServer) dispatch(sess *session.Session, p *network.Packet) (api.Response, *services.Update) {
	switch p.Event {
	case network.EventCreateRoom:
		var req api.CreateRoomPayload
		if err := decode(p, &req); err != nil {
			return api.Fail(api.MsgInvalidPayload), nil
		}
		resp, u := s.game.CreateRoom(sess.ID, req)
		if resp.Success {
			s.bind(sess, req.PlayerID, u.Code)
		}
		return resp, u

	case network.EventJoinRoom:
		var req api.JoinRoomPayload
		if err := decode(p, &req); err != nil {
			return api.Fail(api.MsgInvalidPayload), nil
		}
		resp, u := s.game.JoinRoom(sess.ID, req)
		if resp.Success {
			s.bind(sess, req.PlayerID, u.Code)
		}
		return resp, u

	case network.EventRejoinRoom:
		var req api.RejoinRoomPayload
		if err := decode(p, &req); err != nil {
			return api.Fail(api.MsgInvalidPayload), nil
		}
		resp, u := s.game.RejoinRoom(sess.ID, req)
		if resp.Success {
			s.bind(sess, req.PlayerID, u.Code)
		}
		return resp, u

	case network.EventLeaveRoom:
		var req api.LeaveRoomPayload
		if resp, ok := decodeInRoom(sess, p, &req, &req.RoomRef); !ok {
			return resp, nil
		}
		resp, u := s.game.LeaveRoom(req)
		if resp.Success {
			sess.Unbind()
		}
		return resp, u

	case network.EventStartGame:
		var req api.StartGamePayload
		if resp, ok := decodeInRoom(sess, p, &req, &req.RoomRef); !ok {
			return resp, nil
		}
		return s.game.StartGame(req)

	case network.EventSubmitDescription:
		var req api.SubmitDescriptionPayload
		if resp, ok := decodeInRoom(sess, p, &req, &req.RoomRef); !ok {
			return resp, nil
		}
		return s.game.SubmitDescription(req)

	case network.EventCastVote:
		var req api.CastVotePayload
		if resp, ok := decodeInRoom(sess, p, &req, &req.RoomRef); !ok {
			return resp, nil
		}
		return s.game.CastVote(req)

	case network.EventResetGame:
		var req api.ResetGamePayload
		if resp, ok := decodeInRoom(sess, p, &req, &req.RoomRef); !ok {
			return resp, nil
		}
		return s.game.ResetGame(req)

	case network.EventToggleWordSetter:
		var req api.ToggleWordSetterPayload
		if resp, ok := decodeInRoom(sess, p, &req, &req.RoomRef); !ok {
			return resp, nil
		}
		return s.game.ToggleWordSetter(req)

	case network.EventSetWord:
		var req api.SetWordPayload
		if resp, ok := decodeInRoom(sess, p, &req, &req.RoomRef); !ok {
			return resp, nil
		}
		return s.game.SetWord(req)

	case network.EventListRooms:
		return s.game.ListRooms(), nil

	default:
		logger.Log.Debugw("unknown event", "event", p.Event, "session", sess.ID)
		return api.Fail(api.MsgUnknownEvent), nil
	}
}

func decode(p *network.Packet, req any) error {
	if len(p.Data) == 0 {
		return nil
	}
	return json.Unmarshal(p.Data, req)
}

// decodeInRoom decodes an in-room action and fills its RoomRef from the
// session binding, so a connection can only act as the player it joined as.
func decodeInRoom(sess *session.Session, p *network.Packet, req any, ref *api.RoomRef) (api.Response, bool) {
	playerID, code := sess.Binding()
	if code == "" {
		return api.Fail(api.MsgUnknownPlayer), false
	}
	if err := decode(p, req); err != nil {
		return api.Fail(api.MsgInvalidPayload), false
	}
	ref.PlayerID, ref.RoomCode = playerID, code
	return api.Response{}, true
}

// bind 把会话绑定到新的玩家；若之前绑定在别处，先把旧位置标记为离线。
// 同一玩家从新连接重连后，旧连接失去身份
func (s *GameServer) bind(sess *session.Session, playerID, code string) {
	prevPlayer, prevCode := sess.Binding()
	if prevCode != "" && (prevCode != code || prevPlayer != playerID) {
		s.detach(sess)
	}
	sess.Bind(playerID, code)

	for _, other := range s.sessionManager.GetByRoom(code) {
		if other == sess {
			continue
		}
		if p, _ := other.Binding(); p == playerID {
			other.Unbind()
			logger.Log.Infow("session superseded", "room", code, "player", playerID, "session", other.GetID())
		}
	}
}

func (s *GameServer) detach(sess *session.Session) {
	playerID, code := sess.Binding()
	if code == "" {
		return
	}
	sess.Unbind()
	if u := s.game.Disconnect(sess.ID, playerID, code); u != nil {
		s.publish(u)
	}
}

func (s *GameServer) publish(u *services.Update) {
	s.broadcaster.BroadcastToRoom(u.State, u.Outcome)
	if u.Outcome.Destroyed {
		for _, sess := range s.sessionManager.GetByRoom(u.Code) {
			sess.Unbind()
		}
	}
	if u.Outcome.Destroyed || lobbyEvents[u.Outcome.Event] {
		s.broadcaster.BroadcastToLobby(s.game.Rooms())
	}
}

func (s *GameServer) reply(sess *session.Session, ack uint64, resp api.Response) {
	if err := sess.Send(network.EventAck, ack, resp); err != nil {
		logger.Log.Debugw("ack failed", "session", sess.ID, "error", err)
	}
}
