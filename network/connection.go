// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 * 1024
)

var (
	ErrUnexpectedFrame = errors.New("expected a text frame")
	ErrMalformedPacket = errors.New("malformed packet")
)

// IsRecoverable reports whether a ReadPacket error concerns only that frame,
// leaving the connection usable.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUnexpectedFrame) || errors.Is(err, ErrMalformedPacket)
}

// Packet 是一帧 JSON 消息。Ack 非零时服务端以同一编号应答
type Packet struct {
	Event string          `json:"event"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Connection interface {
	Send(event string, ack uint64, data any) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	conn.SetReadLimit(maxMessageSize)
	return &WSConnection{conn: conn}
}

// Send 串行写出一帧，保证同一连接上的消息顺序
func (c *WSConnection) Send(event string, ack uint64, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Packet{Event: event, Ack: ack, Data: raw})
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.TextMessage {
		return nil, ErrUnexpectedFrame
	}

	if c.heartbeat > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	}

	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if p.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedPacket)
	}
	return &p, nil
}

// SetHeartbeat 要求客户端每个 interval 内至少发一帧，否则读超时断开
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	})
}

func (c *WSConnection) Close() error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
