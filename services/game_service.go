package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wfunc/undercover/api"
	"github.com/wfunc/undercover/config"
	"github.com/wfunc/undercover/logger"
	"github.com/wfunc/undercover/models"
	"github.com/wfunc/undercover/monitor"
	"github.com/wfunc/undercover/persistence"
	"github.com/wfunc/undercover/room"
	"github.com/wfunc/undercover/words"
)

const (
	archiveQueueSize = 64
	archiveTimeout   = 10 * time.Second
)

// Update 是一次成功操作之后需要推送给房间的内容
type Update struct {
	Code    string
	State   *models.RoomState
	Outcome room.Outcome
}

// GameService 每个玩家操作对应一个方法：校验载荷，找到房间，执行，返回应答
type GameService struct {
	rooms   *room.Manager
	cfg     config.GameConfig
	archive persistence.Archive
	monitor *monitor.Monitor
	records chan models.GameRecord
}

// NewRoomManager builds the registry with the configured word list and the
// monitor as phase observer.
func NewRoomManager(cfg config.GameConfig, mon *monitor.Monitor, opts ...room.Option) (*room.Manager, error) {
	catalog := words.Default()
	if len(cfg.WordPairs) > 0 {
		pairs := make([]words.Pair, 0, len(cfg.WordPairs))
		for _, p := range cfg.WordPairs {
			pairs = append(pairs, words.Pair{Civilian: p.Civilian, Undercover: p.Undercover})
		}
		var err error
		if catalog, err = words.NewCatalog(pairs); err != nil {
			return nil, fmt.Errorf("word pairs: %w", err)
		}
	}
	logger.Log.Infow("word catalog loaded", "pairs", catalog.Len())

	base := []room.Option{room.WithCatalog(catalog)}
	if mon != nil {
		base = append(base, room.WithObserver(mon))
	}
	return room.NewRoomManager(append(base, opts...)...), nil
}

func NewGameService(rooms *room.Manager, cfg config.GameConfig, archive persistence.Archive, mon *monitor.Monitor) *GameService {
	return &GameService{
		rooms:   rooms,
		cfg:     cfg,
		archive: archive,
		monitor: mon,
		records: make(chan models.GameRecord, archiveQueueSize),
	}
}

// Run 归档协程：把结束的对局写入 archive，直到 ctx 结束
func (s *GameService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-s.records:
			saveCtx, cancel := context.WithTimeout(ctx, archiveTimeout)
			if err := s.archive.SaveGameRecord(saveCtx, rec); err != nil {
				logger.Log.Errorw("archive game record", "room", rec.RoomCode, "error", err)
			}
			cancel()
		}
	}
}

func (s *GameService) CreateRoom(sessionID string, p api.CreateRoomPayload) (api.Response, *Update) {
	return s.run("create-room", p, func() (api.Message, any, *Update, error) {
		settings := models.Settings{
			MaxPlayers:      p.MaxPlayers,
			UndercoverCount: p.UndercoverCount,
			Password:        p.Password,
			Mode:            models.Mode(p.Mode),
		}
		if settings.MaxPlayers == 0 {
			settings.MaxPlayers = s.cfg.DefaultMaxPlayers
		}
		if settings.UndercoverCount == 0 {
			settings.UndercoverCount = s.cfg.DefaultUndercoverCount
		}
		if settings.Mode == "" {
			settings.Mode = models.ModeOnline
		}
		if settings.MaxPlayers < 2*settings.UndercoverCount+1 {
			return "", nil, nil, fmt.Errorf("%w: %d seats cannot fit %d undercovers",
				api.ErrInvalidPayload, settings.MaxPlayers, settings.UndercoverCount)
		}

		host := models.Player{ID: p.PlayerID, Name: strings.TrimSpace(p.PlayerName), SessionID: sessionID}
		r, err := s.rooms.CreateRoom(strings.ToUpper(p.RoomCode), host, settings)
		if err != nil {
			return "", nil, nil, err
		}
		s.monitor.SetActiveRooms(s.rooms.Count())

		u := s.commit(r, room.Outcome{Event: room.EventRoomCreated, PlayerID: p.PlayerID})
		return api.MsgRoomCreated, view(u, p.PlayerID), u, nil
	})
}

func (s *GameService) JoinRoom(sessionID string, p api.JoinRoomPayload) (api.Response, *Update) {
	return s.run("join-room", p, func() (api.Message, any, *Update, error) {
		r, err := s.room(p.RoomCode)
		if err != nil {
			return "", nil, nil, err
		}
		player := models.Player{ID: p.PlayerID, Name: strings.TrimSpace(p.PlayerName), SessionID: sessionID}
		o, err := r.Join(player, p.Password)
		if err != nil {
			return "", nil, nil, err
		}
		u := s.commit(r, o)
		return api.MsgPlayerJoined, view(u, p.PlayerID), u, nil
	})
}

func (s *GameService) RejoinRoom(sessionID string, p api.RejoinRoomPayload) (api.Response, *Update) {
	return s.run("rejoin-room", p, func() (api.Message, any, *Update, error) {
		r, err := s.room(p.RoomCode)
		if err != nil {
			return "", nil, nil, err
		}
		o, err := r.Rejoin(p.PlayerID, sessionID)
		if err != nil {
			return "", nil, nil, err
		}
		u := s.commit(r, o)
		return api.MsgPlayerRejoined, view(u, p.PlayerID), u, nil
	})
}

func (s *GameService) LeaveRoom(p api.LeaveRoomPayload) (api.Response, *Update) {
	return s.run("leave-room", p, func() (api.Message, any, *Update, error) {
		r, err := s.room(p.RoomCode)
		if err != nil {
			return "", nil, nil, err
		}
		o, err := r.Leave(p.PlayerID)
		if err != nil {
			return "", nil, nil, err
		}
		return api.MsgPlayerLeft, nil, s.commit(r, o), nil
	})
}

func (s *GameService) StartGame(p api.StartGamePayload) (api.Response, *Update) {
	return s.act("start-game", p, p.RoomRef, api.MsgGameStarted, func(r *room.Room) (room.Outcome, error) {
		return r.StartGame(p.PlayerID)
	})
}

func (s *GameService) SubmitDescription(p api.SubmitDescriptionPayload) (api.Response, *Update) {
	return s.act("submit-description", p, p.RoomRef, api.MsgDescriptionSubmitted, func(r *room.Room) (room.Outcome, error) {
		return r.SubmitDescription(p.PlayerID, strings.TrimSpace(p.Description))
	})
}

func (s *GameService) CastVote(p api.CastVotePayload) (api.Response, *Update) {
	return s.act("cast-vote", p, p.RoomRef, api.MsgVoteCasted, func(r *room.Room) (room.Outcome, error) {
		return r.CastVote(p.PlayerID, p.TargetID)
	})
}

func (s *GameService) ResetGame(p api.ResetGamePayload) (api.Response, *Update) {
	return s.act("reset-game", p, p.RoomRef, api.MsgGameRestarted, func(r *room.Room) (room.Outcome, error) {
		return r.ResetGame(p.PlayerID)
	})
}

func (s *GameService) ToggleWordSetter(p api.ToggleWordSetterPayload) (api.Response, *Update) {
	return s.act("toggle-word-setter", p, p.RoomRef, api.MsgWordSetterChanged, func(r *room.Room) (room.Outcome, error) {
		return r.ToggleWordSetter(p.PlayerID, p.TargetID)
	})
}

func (s *GameService) SetWord(p api.SetWordPayload) (api.Response, *Update) {
	return s.act("set-word", p, p.RoomRef, api.MsgWordSet, func(r *room.Room) (room.Outcome, error) {
		return r.SetWord(p.PlayerID, p.CivilianWord, p.UndercoverWord)
	})
}

func (s *GameService) ListRooms() api.Response {
	start := time.Now()
	resp := api.OK(api.MsgRoomList, s.rooms.ListRooms())
	s.monitor.ObserveAction("list-rooms", string(resp.Message), time.Since(start))
	return resp
}

// Rooms is the lobby list, used for pushes. It records no action metric.
func (s *GameService) Rooms() []models.RoomSummary {
	return s.rooms.ListRooms()
}

// Summary returns the lobby entry for one room.
func (s *GameService) Summary(code string) (models.RoomSummary, bool) {
	r, ok := s.rooms.GetRoom(strings.ToUpper(code))
	if !ok {
		return models.RoomSummary{}, false
	}
	return r.Summary(), true
}

// Disconnect 连接断开时把玩家标记为离线，不会移出房间。
// 会话已被 rejoin 替换时返回 nil
func (s *GameService) Disconnect(sessionID, playerID, roomCode string) *Update {
	r, ok := s.rooms.GetRoom(roomCode)
	if !ok {
		return nil
	}
	o, ok := r.Detach(playerID, sessionID)
	if !ok {
		return nil
	}
	return s.commit(r, o)
}

// Sweep 清理空闲房间，返回被移除的房间号
func (s *GameService) Sweep() []string {
	removed := s.rooms.Sweep(s.cfg.RoomIdleTimeout)
	if len(removed) > 0 {
		logger.Log.Infow("swept idle rooms", "rooms", removed)
	}
	s.monitor.SetActiveRooms(s.rooms.Count())
	return removed
}

func (s *GameService) RecentGames(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return s.archive.RecentGames(ctx, limit)
}

func (s *GameService) WinCounts(ctx context.Context) (map[models.Winner]int64, error) {
	return s.archive.WinCounts(ctx)
}

func (s *GameService) room(code string) (*room.Room, error) {
	r, ok := s.rooms.GetRoom(strings.ToUpper(code))
	if !ok {
		return nil, room.ErrRoomNotFound
	}
	return r, nil
}

// act runs an in-room action whose ack carries the actor's view.
func (s *GameService) act(action string, payload any, ref api.RoomRef, msg api.Message, fn func(*room.Room) (room.Outcome, error)) (api.Response, *Update) {
	return s.run(action, payload, func() (api.Message, any, *Update, error) {
		r, err := s.room(ref.RoomCode)
		if err != nil {
			return "", nil, nil, err
		}
		o, err := fn(r)
		if err != nil {
			return "", nil, nil, err
		}
		u := s.commit(r, o)
		return msg, view(u, ref.PlayerID), u, nil
	})
}

func (s *GameService) run(action string, payload any, fn func() (api.Message, any, *Update, error)) (api.Response, *Update) {
	start := time.Now()

	var (
		resp   api.Response
		update *Update
	)
	if err := api.Validate(payload); err != nil {
		logger.Log.Debugw("rejected payload", "action", action, "error", err)
		resp = api.Fail(api.MsgInvalidPayload)
	} else if msg, data, u, err := fn(); err != nil {
		resp = api.Fail(api.MessageFor(err))
		if resp.Message == api.MsgInternalError {
			logger.Log.Errorw("action failed", "action", action, "error", err)
		} else if !errors.Is(err, api.ErrInvalidPayload) {
			logger.Log.Debugw("action rejected", "action", action, "reason", resp.Message)
		}
	} else {
		resp, update = api.OK(msg, data), u
	}

	s.monitor.ObserveAction(action, string(resp.Message), time.Since(start))
	return resp, update
}

// commit 处理房间销毁、平票计数与对局归档。state 取自操作本身的临界区
func (s *GameService) commit(r *room.Room, o room.Outcome) *Update {
	state := o.State
	if state == nil {
		state = r.Snapshot()
	}

	if o.Destroyed {
		s.rooms.Release(r)
		s.monitor.SetActiveRooms(s.rooms.Count())
	}
	if o.Conflict != nil {
		s.monitor.IncVoteConflicts()
	}
	if o.Winner != models.WinnerNone {
		s.monitor.GameFinished(o.Winner)
		s.enqueue(models.NewGameRecord(state))
	}

	logger.Log.Infow("room event",
		"room", r.GetID(),
		"event", o.Event,
		"player", o.PlayerID,
		"phase", state.Phase,
		"round", state.Round,
		"version", state.Version,
	)
	return &Update{Code: r.GetID(), State: state, Outcome: o}
}

func (s *GameService) enqueue(rec models.GameRecord) {
	select {
	case s.records <- rec:
	default:
		logger.Log.Warnw("archive queue full, dropping game record", "room", rec.RoomCode)
	}
}

func view(u *Update, playerID string) models.RoomView {
	return models.ProjectRoom(u.State, playerID)
}
