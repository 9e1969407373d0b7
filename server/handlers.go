package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"github.com/wfunc/undercover/api"
	"github.com/wfunc/undercover/logger"
	"github.com/wfunc/undercover/persistence"
)

const (
	qrSize           = 320
	defaultGameLimit = 20
	maxGameLimit     = 200
)

func (s *GameServer) routes() *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		logger.Log.Errorw("http handler panic", "path", r.URL.Path, "panic", i, "stack", string(debug.Stack()))
		writeJSON(w, http.StatusInternalServerError, api.Fail(api.MsgInternalError))
	}

	mux.GET("/ws", s.serveWebSocket())
	mux.GET("/api/rooms", s.serveRooms())
	mux.GET("/api/rooms/:code", s.serveRoom())
	mux.GET("/api/rooms/:code/qr", s.serveRoomQR())
	mux.GET("/api/games", s.serveGames())
	mux.GET("/healthz", serveHealthCheck())
	if s.monitor != nil {
		mux.Handler(http.MethodGet, "/metrics", s.monitor.Handler())
	}

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Debugw("write response", "error", err)
	}
}

func serveHealthCheck() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Ok\n"))
	}
}

func (s *GameServer) serveRooms() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, s.game.ListRooms())
	}
}

func (s *GameServer) serveRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sum, ok := s.game.Summary(ps.ByName("code"))
		if !ok {
			writeJSON(w, http.StatusNotFound, api.Fail(api.MsgRoomNotFound))
			return
		}
		writeJSON(w, http.StatusOK, api.OK(api.MsgRoomList, sum))
	}
}

// serveRoomQR 生成加入房间链接的二维码，方便线下扫码入场
func (s *GameServer) serveRoomQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sum, ok := s.game.Summary(ps.ByName("code"))
		if !ok {
			writeJSON(w, http.StatusNotFound, api.Fail(api.MsgRoomNotFound))
			return
		}

		png, err := qrcode.Encode(s.joinURL(sum.Code), qrcode.Medium, qrSize)
		if err != nil {
			logger.Log.Errorw("qr generation failed", "room", sum.Code, "error", err)
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func (s *GameServer) joinURL(code string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/?room=" + url.QueryEscape(code)
}

func (s *GameServer) serveGames() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		limit := defaultGameLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n > maxGameLimit {
				writeJSON(w, http.StatusBadRequest, api.Fail(api.MsgInvalidPayload))
				return
			}
			limit = n
		}

		games, err := s.game.RecentGames(r.Context(), limit)
		switch {
		case errors.Is(err, persistence.ErrInvalidLimit):
			writeJSON(w, http.StatusBadRequest, api.Fail(api.MsgInvalidPayload))
		case err != nil:
			logger.Log.Errorw("recent games", "error", err)
			writeJSON(w, http.StatusInternalServerError, api.Fail(api.MsgInternalError))
		default:
			writeJSON(w, http.StatusOK, api.OK(api.MsgGameList, games))
		}
	}
}
