// Package bus publishes dialogue events to a websocket hub.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	KindWake     = "wake"
	KindSleep    = "sleep"
	KindShutdown = "shutdown"
	KindUser     = "user"
	KindReply    = "reply"
)

type Event struct {
	From    string `json:"from"`
	Kind    string `json:"kind"`
	Session string `json:"session,omitempty"`
	Content string `json:"content,omitempty"`
}

// Bus delivers events in the background. Publishing never blocks and a
// missing or broken hub only costs dropped events.
type Bus struct {
	url    string
	from   string
	reconn time.Duration
	events chan Event
	dialer *websocket.Dialer
	log    *slog.Logger
}

func New(url, from string, reconn time.Duration, log *slog.Logger) *Bus {
	if reconn <= 0 {
		reconn = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		url:    url,
		from:   from,
		reconn: reconn,
		events: make(chan Event, 64),
		dialer: websocket.DefaultDialer,
		log:    log,
	}
}

// Publish queues an event. Safe on a nil Bus.
func (b *Bus) Publish(kind, session, content string) {
	if b == nil {
		return
	}

	ev := Event{From: b.from, Kind: kind, Session: session, Content: content}
	select {
	case b.events <- ev:
	default:
		b.log.Debug("Bus queue full, dropping event", "kind", kind)
	}
}

// Run owns the connection until ctx is done, redialing after failures.
// Events still queued when ctx ends are written before the connection closes.
func (b *Bus) Run(ctx context.Context) {
	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		}
	}()

	for {
		if conn == nil {
			conn = b.connect(ctx)
			if conn == nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			b.flush(conn)
			return
		case ev := <-b.events:
			if err := b.write(conn, ev); err != nil {
				b.log.Warn("Bus write failed, reconnecting", "err", err)
				conn.Close()
				conn = nil
			}
		}
	}
}

func (b *Bus) flush(conn *websocket.Conn) {
	for {
		select {
		case ev := <-b.events:
			if err := b.write(conn, ev); err != nil {
				b.log.Warn("Bus flush failed", "err", err)
				return
			}
		default:
			return
		}
	}
}

// connect dials until it succeeds or ctx ends.
func (b *Bus) connect(ctx context.Context) *websocket.Conn {
	for {
		conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
		if err == nil {
			b.log.Info("Connected to bus", "url", b.url)
			go b.drain(conn)
			return conn
		}

		b.log.Debug("Bus dial failed", "url", b.url, "err", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.reconn):
		}
	}
}

func (b *Bus) write(conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// drain reads and discards incoming frames so pings and closes are handled.
func (b *Bus) drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			if IsClosed(err) {
				b.log.Info("Bus closed by hub")
			}
			return
		}
	}
}

func IsClosed(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}
