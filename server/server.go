package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/wfunc/undercover/broadcast"
	"github.com/wfunc/undercover/config"
	"github.com/wfunc/undercover/logger"
	"github.com/wfunc/undercover/monitor"
	gamerpc "github.com/wfunc/undercover/rpc"
	"github.com/wfunc/undercover/services"
	"github.com/wfunc/undercover/session"
	"github.com/wfunc/undercover/timer"
)

const shutdownTimeout = 10 * time.Second

type GameServer struct {
	cfg            config.ServerConfig
	limits         config.LimitsConfig
	sweepInterval  time.Duration
	idleTimeout    time.Duration
	game           *services.GameService
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	rpcServer      *gamerpc.Server
	httpServer     *http.Server
	router         *httprouter.Router
	upgrader       websocket.Upgrader
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

// NewGameServer wires the gateway around game. The RPC listener is opened
// here when cfg.Server.RPCAddress is set.
func NewGameServer(cfg *config.Config, game *services.GameService, mon *monitor.Monitor) (*GameServer, error) {
	sessions := session.NewManager()
	s := &GameServer{
		cfg:            cfg.Server,
		limits:         cfg.Limits,
		sweepInterval:  cfg.Game.SweepInterval,
		idleTimeout:    cfg.Game.RoomIdleTimeout,
		game:           game,
		sessionManager: sessions,
		broadcaster:    broadcast.NewRoomBroadcaster(sessions),
		monitor:        mon,
		timers:         timer.NewTimerManager(),
		shutdownChan:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	if cfg.Server.RPCAddress != "" {
		rpcServer, err := gamerpc.NewServer(cfg.Server.RPCAddress, game)
		if err != nil {
			return nil, fmt.Errorf("rpc server: %w", err)
		}
		s.rpcServer = rpcServer
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           s.router,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      time.Minute,
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *GameServer) Handler() http.Handler {
	return s.router
}

// Start runs the archive worker, the RPC listener, the idle-room sweeper and
// the HTTP server, then blocks until ctx ends or the listener fails.
func (s *GameServer) Start(ctx context.Context) error {
	go s.game.Run(ctx)
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	s.startSweeper()

	errs := make(chan error, 1)
	go func() {
		logger.Log.Infof("Game server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Shutdown stops accepting work and closes every websocket. Safe to call twice.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		logger.Log.Infow("Shutting down game server.",
			"timers", s.timers.Len(),
			"sessions", s.sessionManager.Count(),
		)
		close(s.shutdownChan)
		s.timers.Stop()
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		err = s.httpServer.Shutdown(ctx)

		// Shutdown 不跟踪被劫持的 websocket 连接
		for _, sess := range s.sessionManager.All() {
			_ = sess.Close()
		}
	})
	return err
}

func (s *GameServer) startSweeper() {
	if s.sweepInterval <= 0 {
		return
	}
	s.timers.AddTimer(s.sweepInterval, s.sweepInterval, s.sweep)
}

// sweep 断开长时间无消息的连接，再清理空闲房间
func (s *GameServer) sweep() {
	if s.idleTimeout > 0 {
		cutoff := time.Now().Add(-s.idleTimeout)
		for _, sess := range s.sessionManager.All() {
			if sess.LastActive().Before(cutoff) {
				logger.Log.Infow("closing idle connection", "session", sess.ID)
				_ = sess.Close()
			}
		}
	}
	if removed := s.game.Sweep(); len(removed) > 0 {
		for _, code := range removed {
			s.broadcaster.Forget(code)
		}
		s.broadcaster.BroadcastToLobby(s.game.Rooms())
	}
}

// checkOrigin 未配置 allowed_origins 时允许所有跨域请求
func (s *GameServer) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.cfg.AllowedOrigins, origin)
}
