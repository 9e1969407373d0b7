package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
	"github.com/wfunc/undercover/api"
	"github.com/wfunc/undercover/network"
)

const usage = `commands:
  create <playerId> <name> [maxPlayers] [undercovers]
  join <code> <playerId> <name> [password]
  rejoin <code> <playerId>
  start | reset | leave | list
  describe <text...>
  vote <targetId>
  setter <targetId>
  word <civilian> <undercover>`

type client struct {
	conn *websocket.Conn
	ack  uint64
}

// send formats and sends one packet to the server.
func (c *client) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.ack++
	return c.conn.WriteJSON(network.Packet{Event: event, Ack: c.ack, Data: raw})
}

// parse turns an input line into an event and payload. In-room commands
// carry no room reference; the server takes it from the connection.
func parse(line string) (string, any, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty command")
	}
	args := fields[1:]
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s needs %d arguments", fields[0], n)
		}
		return nil
	}

	switch fields[0] {
	case "create":
		if err := need(2); err != nil {
			return "", nil, err
		}
		p := api.CreateRoomPayload{PlayerID: args[0], PlayerName: args[1]}
		if len(args) > 2 {
			fmt.Sscanf(args[2], "%d", &p.MaxPlayers)
		}
		if len(args) > 3 {
			fmt.Sscanf(args[3], "%d", &p.UndercoverCount)
		}
		return network.EventCreateRoom, p, nil
	case "join":
		if err := need(3); err != nil {
			return "", nil, err
		}
		p := api.JoinRoomPayload{RoomRef: api.RoomRef{RoomCode: args[0], PlayerID: args[1]}, PlayerName: args[2]}
		if len(args) > 3 {
			p.Password = args[3]
		}
		return network.EventJoinRoom, p, nil
	case "rejoin":
		if err := need(2); err != nil {
			return "", nil, err
		}
		return network.EventRejoinRoom, api.RejoinRoomPayload{RoomRef: api.RoomRef{RoomCode: args[0], PlayerID: args[1]}}, nil
	case "start":
		return network.EventStartGame, nil, nil
	case "reset":
		return network.EventResetGame, nil, nil
	case "leave":
		return network.EventLeaveRoom, nil, nil
	case "list":
		return network.EventListRooms, nil, nil
	case "describe":
		if err := need(1); err != nil {
			return "", nil, err
		}
		return network.EventSubmitDescription, api.SubmitDescriptionPayload{Description: strings.Join(args, " ")}, nil
	case "vote":
		if err := need(1); err != nil {
			return "", nil, err
		}
		return network.EventCastVote, api.CastVotePayload{TargetID: args[0]}, nil
	case "setter":
		if err := need(1); err != nil {
			return "", nil, err
		}
		return network.EventToggleWordSetter, api.ToggleWordSetterPayload{TargetID: args[0]}, nil
	case "word":
		if err := need(2); err != nil {
			return "", nil, err
		}
		return network.EventSetWord, api.SetWordPayload{CivilianWord: args[0], UndercoverWord: args[1]}, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", fields[0])
	}
}

func main() {
	addr := pflag.String("addr", "localhost:8080", "server host:port")
	heartbeat := pflag.Duration("heartbeat", 20*time.Second, "heartbeat interval")
	pflag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	c := &client{conn: conn}

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			var p network.Packet
			if err := conn.ReadJSON(&p); err != nil {
				log.Println("Read error:", err)
				return
			}
			if p.Event == network.EventAck {
				log.Printf("<- ACK #%d: %s", p.Ack, string(p.Data))
				continue
			}
			log.Printf("<- %s: %s", p.Event, string(p.Data))
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	log.Println(usage)
	ticker := time.NewTicker(*heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.send(network.EventHeartbeat, nil); err != nil {
				log.Println("Write error:", err)
				return
			}
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			event, payload, err := parse(line)
			if err != nil {
				log.Println(err)
				continue
			}
			if err := c.send(event, payload); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT #%d: %s", c.ack, event)
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
