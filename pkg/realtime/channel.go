// Package realtime maintains the persistent websocket to the Huddle
// server: named JSON events in both directions, a reconnect/backoff
// state machine, and per-event handler dispatch. The channel never
// resyncs by itself — after a reconnect the session coordinator rejoins
// the open room and splices in missed messages.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64

	reconnectBaseDelay   = 1 * time.Second
	reconnectMaxDelay    = 5 * time.Second
	maxReconnectAttempts = 10
)

// ErrNotConnected is returned by Emit while the channel is not in the
// connected state. Edits and deletes are refused offline rather than
// queued.
var ErrNotConnected = errors.New("realtime: not connected")

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the human-readable label shown in the status indicator.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Event is the wire envelope: a named event carrying a JSON payload.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler consumes the payload of a received event.
type Handler func(data json.RawMessage)

// StateFunc observes connection state transitions.
type StateFunc func(from, to State)

// Channel is a reconnecting websocket event channel. Register handlers
// and the state observer before Connect; both are invoked from the
// channel's reader goroutine.
type Channel struct {
	url       string
	token     string
	dialer    *websocket.Dialer
	sessionID uuid.UUID

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	closed   bool
	send     chan Event
	handlers map[string][]Handler
	onState  StateFunc
}

// New creates a channel for the given websocket URL and session token.
func New(wsURL, token string) *Channel {
	return &Channel{
		url:       wsURL,
		token:     token,
		dialer:    &websocket.Dialer{HandshakeTimeout: 20 * time.Second},
		sessionID: uuid.New(),
		handlers:  make(map[string][]Handler),
	}
}

// Handle registers a handler for a named event. Multiple handlers per
// event run in registration order.
func (c *Channel) Handle(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnStateChange registers the state transition observer.
func (c *Channel) OnStateChange(fn StateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server and starts the read and write loops. It
// returns once the initial connection is established or fails; after
// that, transport errors drive automatic reconnection with exponential
// backoff until the attempt budget is exhausted.
func (c *Channel) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("realtime.Connect: %w", err)
	}
	c.start(conn)
	c.setState(StateConnected)
	return nil
}

// Close shuts the channel down permanently. No reconnection follows.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	if c.send != nil {
		close(c.send)
		c.send = nil
	}
	c.mu.Unlock()

	c.setState(StateDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Emit sends a named event to the server. It fails fast with
// ErrNotConnected while the transport is down.
func (c *Channel) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime.Emit: marshal %s: %w", event, err)
	}

	// The buffered send happens under the same lock that tears the
	// channel down, so a teardown can never close c.send mid-Emit.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- Event{Name: event, Data: data}:
		return nil
	default:
		return fmt.Errorf("realtime.Emit: send buffer full, dropping %s", event)
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	header.Set("X-Huddle-Session", c.sessionID.String())
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	return conn, err
}

// start installs a fresh connection and spawns its loops.
func (c *Channel) start(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.send = make(chan Event, sendBufferSize)
	send := c.send
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.writeLoop(conn, send)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("realtime: read loop ended")
			c.onTransportError(conn)
			return
		}
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Warn().Err(err).Msg("realtime: malformed event, skipping")
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Channel) writeLoop(conn *websocket.Conn, send chan Event) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("event", ev.Name).Msg("realtime: write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Channel) dispatch(ev Event) {
	c.mu.Lock()
	handlers := c.handlers[ev.Name]
	c.mu.Unlock()

	if len(handlers) == 0 {
		// Application-level error events are logged only; everything
		// else unknown is noise from newer servers.
		if ev.Name == "error" {
			log.Warn().RawJSON("data", ev.Data).Msg("realtime: server error event")
		} else {
			log.Debug().Str("event", ev.Name).Msg("realtime: no handler")
		}
		return
	}
	for _, h := range handlers {
		h(ev.Data)
	}
}

// onTransportError tears down the failed connection and runs the
// reconnect loop, unless the channel was closed deliberately.
func (c *Channel) onTransportError(failed *websocket.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		// Already closed, or a newer connection superseded this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.send != nil {
		close(c.send)
		c.send = nil
	}
	c.mu.Unlock()
	_ = failed.Close()

	c.setState(StateReconnecting)
	go c.reconnectLoop()
}

func (c *Channel) reconnectLoop() {
	delay := reconnectBaseDelay
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		time.Sleep(delay)
		if delay *= 2; delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("realtime: reconnect failed")
			continue
		}
		c.start(conn)
		c.setState(StateConnected)
		log.Info().Int("attempt", attempt).Msg("realtime: reconnected")
		return
	}
	log.Warn().Int("attempts", maxReconnectAttempts).Msg("realtime: reconnect budget exhausted")
	c.setState(StateDisconnected)
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if old != s && fn != nil {
		fn(old, s)
	}
}
