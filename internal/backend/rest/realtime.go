package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskboard/internal/backend"
	"taskboard/internal/model"
)

const heartbeatInterval = 25 * time.Second

// realtimeMsg is the framed message shape of the realtime channel.
type realtimeMsg struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref,omitempty"`
}

type changePayload struct {
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

func (c *Client) realtimeURL() (string, error) {
	u := *c.base
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("rest: cannot derive websocket URL from scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", c.anon)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) topic() string {
	return "realtime:public:" + c.table
}

// SubscribeTaskChanges opens a websocket to the realtime channel and joins
// the task-table topic. The subscription lives until Unsubscribe or until
// the connection drops, at which point the change channel closes; callers
// resubscribe (the tasklist manager does this with backoff).
func (c *Client) SubscribeTaskChanges(ctx context.Context) (backend.Subscription, error) {
	wsURL, err := c.realtimeURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("rest: realtime dial: %w", err)
	}

	join := realtimeMsg{Topic: c.topic(), Event: "phx_join", Ref: "1", Payload: json.RawMessage(`{}`)}
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rest: realtime join: %w", err)
	}

	sub := &realtimeSubscription{
		conn:   conn,
		ch:     make(chan model.Change, 256),
		done:   make(chan struct{}),
		table:  c.table,
		client: c,
	}
	go sub.readLoop()
	go sub.heartbeatLoop()
	return sub, nil
}

type realtimeSubscription struct {
	conn   *websocket.Conn
	ch     chan model.Change
	done   chan struct{}
	once   sync.Once
	table  string
	client *Client
}

func (s *realtimeSubscription) Changes() <-chan model.Change { return s.ch }

func (s *realtimeSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		// Best-effort leave; the read loop exits when the conn closes.
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (s *realtimeSubscription) readLoop() {
	defer close(s.ch)
	for {
		var msg realtimeMsg
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				s.client.logger.Warn("realtime read failed", "error", err)
			}
			return
		}
		change, ok := s.decode(msg)
		if !ok {
			continue
		}
		select {
		case s.ch <- change:
		case <-s.done:
			return
		}
	}
}

func (s *realtimeSubscription) decode(msg realtimeMsg) (model.Change, bool) {
	if msg.Topic != "realtime:public:"+s.table {
		return model.Change{}, false
	}
	var p changePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.client.logger.Warn("realtime payload decode failed", "event", msg.Event, "error", err)
			return model.Change{}, false
		}
	}

	switch msg.Event {
	case "INSERT", "UPDATE":
		var row wireTask
		if err := json.Unmarshal(p.Record, &row); err != nil {
			s.client.logger.Warn("realtime record decode failed", "event", msg.Event, "error", err)
			return model.Change{}, false
		}
		typ := model.ChangeInsert
		if msg.Event == "UPDATE" {
			typ = model.ChangeUpdate
		}
		return model.Change{Type: typ, Task: row.task()}, true
	case "DELETE":
		var old struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(p.OldRecord, &old); err != nil {
			s.client.logger.Warn("realtime old_record decode failed", "error", err)
			return model.Change{}, false
		}
		return model.Change{Type: model.ChangeDelete, Task: model.Task{ID: old.ID}}, true
	default:
		// phx_reply, presence, system messages.
		return model.Change{}, false
	}
}

func (s *realtimeSubscription) heartbeatLoop() {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	ref := 2
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			hb := realtimeMsg{Topic: "phoenix", Event: "heartbeat", Ref: strconv.Itoa(ref), Payload: json.RawMessage(`{}`)}
			ref++
			if err := s.conn.WriteJSON(hb); err != nil {
				// The read loop notices the dead conn and closes Changes.
				_ = s.conn.Close()
				return
			}
		}
	}
}
