package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/undercover/api"
	"github.com/wfunc/undercover/broadcast"
	"github.com/wfunc/undercover/config"
	"github.com/wfunc/undercover/models"
	"github.com/wfunc/undercover/monitor"
	"github.com/wfunc/undercover/network"
	"github.com/wfunc/undercover/persistence"
	"github.com/wfunc/undercover/room"
	"github.com/wfunc/undercover/services"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{PublicURL: "http://play.test/"},
		Game: config.GameConfig{
			DefaultMaxPlayers:      6,
			DefaultUndercoverCount: 1,
			RoomIdleTimeout:        time.Minute,
			WordPairs:              []config.WordPairConfig{{Civilian: "Cat", Undercover: "Dog"}},
		},
		Limits: config.LimitsConfig{ActionsPerSecond: 100, Burst: 100},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*GameServer, *httptest.Server) {
	t.Helper()
	mon := monitor.NewMonitor("server_test")
	rooms, err := services.NewRoomManager(cfg.Game, mon)
	require.NoError(t, err)
	game := services.NewGameService(rooms, cfg.Game, persistence.NewMemory(10), mon)

	s, err := NewGameServer(cfg, game, mon)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		ts.Close()
	})
	return s, ts
}

type wireResponse struct {
	Success bool            `json:"success"`
	Message api.Message     `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	ack    uint64
	pushes []network.Packet
}

func dialClient(t *testing.T, ts *httptest.Server) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) read() network.Packet {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var p network.Packet
	require.NoError(c.t, c.conn.ReadJSON(&p))
	return p
}

// request sends one event and waits for its ack, keeping pushes read meanwhile.
func (c *testClient) request(event string, data any) wireResponse {
	c.t.Helper()
	c.ack++
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(network.Packet{Event: event, Ack: c.ack, Data: raw}))

	for {
		p := c.read()
		if p.Event != network.EventAck {
			c.pushes = append(c.pushes, p)
			continue
		}
		require.Equal(c.t, c.ack, p.Ack)
		var resp wireResponse
		require.NoError(c.t, json.Unmarshal(p.Data, &resp))
		return resp
	}
}

func (c *testClient) waitPush(event string) json.RawMessage {
	c.t.Helper()
	for i, p := range c.pushes {
		if p.Event == event {
			c.pushes = append(c.pushes[:i], c.pushes[i+1:]...)
			return p.Data
		}
	}
	for {
		p := c.read()
		if p.Event == event {
			return p.Data
		}
		c.pushes = append(c.pushes, p)
	}
}

func (c *testClient) waitRoomPush(event room.Event) broadcast.Push {
	c.t.Helper()
	var push broadcast.Push
	require.NoError(c.t, json.Unmarshal(c.waitPush(string(event)), &push))
	return push
}

func decodeView(t *testing.T, resp wireResponse) models.RoomView {
	t.Helper()
	var v models.RoomView
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

func createRoom(t *testing.T, c *testClient) string {
	t.Helper()
	resp := c.request(network.EventCreateRoom, api.CreateRoomPayload{PlayerID: "a", PlayerName: "Ann"})
	require.True(t, resp.Success, resp.Message)
	require.Equal(t, api.MsgRoomCreated, resp.Message)
	return decodeView(t, resp).Code
}

func joinRoom(t *testing.T, c *testClient, code, id string) {
	t.Helper()
	resp := c.request(network.EventJoinRoom, api.JoinRoomPayload{
		RoomRef:    api.RoomRef{RoomCode: code, PlayerID: id},
		PlayerName: strings.ToUpper(id),
	})
	require.True(t, resp.Success, resp.Message)
}

func TestGameServer_CreateJoinAndPush(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	host := dialClient(t, ts)
	guest := dialClient(t, ts)

	code := createRoom(t, host)
	joinRoom(t, guest, code, "b")

	push := host.waitRoomPush(room.EventPlayerJoined)
	assert.Equal(t, "b", push.Outcome.PlayerID)
	assert.Equal(t, "a", push.Room.Viewer)
	require.Len(t, push.Room.Players, 2)
	assert.Equal(t, models.PhaseWaiting, push.Room.Phase)
}

func TestGameServer_StartPushesPrivateWords(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	clients := map[string]*testClient{"a": dialClient(t, ts), "b": dialClient(t, ts), "c": dialClient(t, ts)}

	code := createRoom(t, clients["a"])
	joinRoom(t, clients["b"], code, "b")
	joinRoom(t, clients["c"], code, "c")

	resp := clients["a"].request(network.EventStartGame, nil)
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, api.MsgGameStarted, resp.Message)

	undercovers := 0
	for id, c := range clients {
		push := c.waitRoomPush(room.EventGameStarted)
		assert.Equal(t, models.PhaseDescription, push.Room.Phase)
		assert.Empty(t, push.Room.CivilianWord)

		for _, p := range push.Room.Players {
			if p.ID != id {
				assert.Empty(t, p.Word, "%s sees the word of %s", id, p.ID)
				assert.Nil(t, p.IsUndercover)
				continue
			}
			assert.Contains(t, []string{"Cat", "Dog"}, p.Word)
			require.NotNil(t, p.IsUndercover)
			if *p.IsUndercover {
				undercovers++
			}
		}
	}
	assert.Equal(t, 1, undercovers)
}

func TestGameServer_InRoomActionNeedsBinding(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	host := dialClient(t, ts)
	intruder := dialClient(t, ts)
	code := createRoom(t, host)

	// 未加入房间的连接不能冒充房主
	resp := intruder.request(network.EventStartGame, api.StartGamePayload{
		RoomRef: api.RoomRef{RoomCode: code, PlayerID: "a"},
	})
	assert.False(t, resp.Success)
	assert.Equal(t, api.MsgUnknownPlayer, resp.Message)
}

func TestGameServer_ProtocolErrors(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	c := dialClient(t, ts)

	resp := c.request(network.EventHeartbeat, nil)
	assert.True(t, resp.Success)
	assert.Equal(t, api.MsgPong, resp.Message)

	resp = c.request("fly-away", nil)
	assert.Equal(t, api.MsgUnknownEvent, resp.Message)

	resp = c.request(network.EventCreateRoom, "not an object")
	assert.Equal(t, api.MsgInvalidPayload, resp.Message)

	resp = c.request(network.EventJoinRoom, api.JoinRoomPayload{
		RoomRef:    api.RoomRef{RoomCode: "NOPE99", PlayerID: "z"},
		PlayerName: "Zed",
	})
	assert.Equal(t, api.MsgRoomNotFound, resp.Message)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	p := c.read()
	assert.Equal(t, network.EventAck, p.Event)
	assert.Zero(t, p.Ack)
	assert.Contains(t, string(p.Data), string(api.MsgInvalidPayload))
}

func TestGameServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Limits = config.LimitsConfig{ActionsPerSecond: 0.001, Burst: 1}
	_, ts := newTestServer(t, cfg)
	c := dialClient(t, ts)

	assert.Equal(t, api.MsgRoomList, c.request(network.EventListRooms, nil).Message)
	assert.Equal(t, api.MsgRateLimited, c.request(network.EventListRooms, nil).Message)
	// 心跳不计入限流
	assert.Equal(t, api.MsgPong, c.request(network.EventHeartbeat, nil).Message)
}

func TestGameServer_LobbyPush(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	lobby := dialClient(t, ts)
	host := dialClient(t, ts)

	// 确保大厅连接已注册
	lobby.request(network.EventHeartbeat, nil)
	code := createRoom(t, host)

	var rooms []models.RoomSummary
	require.NoError(t, json.Unmarshal(lobby.waitPush(broadcast.EventRoomsUpdated), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, code, rooms[0].Code)
	assert.Equal(t, "Ann", rooms[0].HostName)
}

func TestGameServer_DisconnectMarksOffline(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	host := dialClient(t, ts)
	guest := dialClient(t, ts)

	code := createRoom(t, host)
	joinRoom(t, guest, code, "b")
	host.waitRoomPush(room.EventPlayerJoined)

	require.NoError(t, guest.conn.Close())

	push := host.waitRoomPush(room.EventPlayerDisconnected)
	assert.Equal(t, "b", push.Outcome.PlayerID)
	for _, p := range push.Room.Players {
		if p.ID == "b" {
			assert.False(t, p.Connected)
		}
	}

	again := dialClient(t, ts)
	resp := again.request(network.EventRejoinRoom, api.RejoinRoomPayload{
		RoomRef: api.RoomRef{RoomCode: code, PlayerID: "b"},
	})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, api.MsgPlayerRejoined, resp.Message)
	host.waitRoomPush(room.EventPlayerRejoined)
}

func TestGameServer_LeaveUnbinds(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	host := dialClient(t, ts)
	guest := dialClient(t, ts)

	code := createRoom(t, host)
	joinRoom(t, guest, code, "b")

	resp := guest.request(network.EventLeaveRoom, nil)
	require.True(t, resp.Success, resp.Message)
	host.waitRoomPush(room.EventPlayerLeft)

	resp = guest.request(network.EventStartGame, nil)
	assert.Equal(t, api.MsgUnknownPlayer, resp.Message)
}

func TestGameServer_RejoinSupersedesOldConnection(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	old := dialClient(t, ts)
	code := createRoom(t, old)

	fresh := dialClient(t, ts)
	resp := fresh.request(network.EventRejoinRoom, api.RejoinRoomPayload{
		RoomRef: api.RoomRef{RoomCode: code, PlayerID: "a"},
	})
	require.True(t, resp.Success, resp.Message)

	// 旧连接不再代表玩家 a
	resp = old.request(network.EventStartGame, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, api.MsgUnknownPlayer, resp.Message)

	resp = fresh.request(network.EventStartGame, nil)
	assert.NotEqual(t, api.MsgUnknownPlayer, resp.Message)

	// 关闭旧连接不会把 a 标记为离线
	require.NoError(t, old.conn.Close())
	joinRoom(t, dialClient(t, ts), code, "b")
	push := fresh.waitRoomPush(room.EventPlayerJoined)
	assert.Equal(t, "b", push.Outcome.PlayerID)
	for _, p := range push.Room.Players {
		if p.ID == "a" {
			assert.True(t, p.Connected)
		}
	}
}

func TestGameServer_PushVersionsIncrease(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	host := dialClient(t, ts)
	resp := host.request(network.EventCreateRoom, api.CreateRoomPayload{PlayerID: "a", PlayerName: "Ann"})
	require.True(t, resp.Success, resp.Message)
	created := decodeView(t, resp)
	code, prev := created.Code, created.Version
	assert.NotZero(t, prev)
	for _, id := range []string{"b", "c", "d"} {
		joinRoom(t, dialClient(t, ts), code, id)
		push := host.waitRoomPush(room.EventPlayerJoined)
		assert.Equal(t, id, push.Outcome.PlayerID)
		assert.Greater(t, push.Room.Version, prev)
		prev = push.Room.Version
	}
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	res, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, body
}

func TestGameServer_HTTPEndpoints(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	code := createRoom(t, dialClient(t, ts))

	res, body := get(t, ts, "/healthz")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Ok\n", string(body))

	res, body = get(t, ts, "/api/rooms")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), code)

	res, body = get(t, ts, "/api/rooms/"+strings.ToLower(code))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"hostName":"Ann"`)

	res, _ = get(t, ts, "/api/rooms/NOPE99")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body = get(t, ts, "/api/rooms/"+code+"/qr")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))

	res, _ = get(t, ts, "/api/rooms/NOPE99/qr")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body = get(t, ts, "/api/games")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), string(api.MsgGameList))

	res, _ = get(t, ts, "/api/games?limit=abc")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res, _ = get(t, ts, "/api/games?limit=0")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = get(t, ts, "/metrics")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "server_test_connections 1")
	assert.Contains(t, string(body), "server_test_active_rooms 1")
}

func TestGameServer_CheckOrigin(t *testing.T) {
	s := &GameServer{}
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.test")
	assert.True(t, s.checkOrigin(req))

	s.cfg.AllowedOrigins = []string{"http://play.test"}
	assert.False(t, s.checkOrigin(req))
	req.Header.Set("Origin", "http://play.test")
	assert.True(t, s.checkOrigin(req))
}

func TestGameServer_JoinURL(t *testing.T) {
	s := &GameServer{cfg: config.ServerConfig{PublicURL: "http://play.test/"}}
	assert.Equal(t, "http://play.test/?room=ABC234", s.joinURL("ABC234"))
}

func TestGameServer_SweepClosesIdleConnections(t *testing.T) {
	cfg := testConfig()
	cfg.Game.RoomIdleTimeout = time.Millisecond
	s, ts := newTestServer(t, cfg)
	c := dialClient(t, ts)
	code := createRoom(t, c)

	time.Sleep(5 * time.Millisecond)
	s.sweep()

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var err error
	for err == nil {
		_, _, err = c.conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)

	// 断开后房间无人在线，随后的清理会移除它
	assert.Eventually(t, func() bool {
		s.sweep()
		_, ok := s.game.Summary(code)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
