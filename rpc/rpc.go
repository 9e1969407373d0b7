package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/undercover/logger"
	"github.com/wfunc/undercover/models"
	"github.com/wfunc/undercover/services"
)

const (
	callTimeout      = 5 * time.Second
	defaultGameLimit = 20
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the admin RoomService.
func NewServer(addr string, game *services.GameService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("RoomService", NewRoomService(game)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr is the bound address, useful when addr used port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService exposes read-only admin queries. Methods follow the net/rpc
// signature: exported args, pointer reply, error result.
type RoomService struct {
	game *services.GameService
}

func NewRoomService(game *services.GameService) *RoomService {
	return &RoomService{game: game}
}

// ListRoomsArgs filters by phase; empty means every room.
type ListRoomsArgs struct {
	Phase models.Phase
}

type ListRoomsReply struct {
	Rooms []models.RoomSummary
}

func (rs *RoomService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	resp := rs.game.ListRooms()
	rooms, _ := resp.Data.([]models.RoomSummary)
	for _, r := range rooms {
		if args.Phase == "" || r.Phase == args.Phase {
			reply.Rooms = append(reply.Rooms, r)
		}
	}
	return nil
}

type RecentGamesArgs struct {
	Limit int
}

type RecentGamesReply struct {
	Games []models.GameRecord
}

func (rs *RoomService) RecentGames(args *RecentGamesArgs, reply *RecentGamesReply) error {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultGameLimit
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	games, err := rs.game.RecentGames(ctx, limit)
	if err != nil {
		return err
	}
	reply.Games = games
	return nil
}

// WinCountsArgs restricts the reply to one side; empty means both.
type WinCountsArgs struct {
	Winner models.Winner
}

type WinCountsReply struct {
	Counts map[models.Winner]int64
}

func (rs *RoomService) WinCounts(args *WinCountsArgs, reply *WinCountsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	counts, err := rs.game.WinCounts(ctx)
	if err != nil {
		return err
	}
	if args.Winner != models.WinnerNone {
		counts = map[models.Winner]int64{args.Winner: counts[args.Winner]}
	}
	reply.Counts = counts
	return nil
}
