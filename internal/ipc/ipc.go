// Package ipc is the operator control channel: a unix socket taking one JSON
// command per connection.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultSocketPath = "/tmp/windy.sock"

type Command string

const (
	CmdShutdown Command = "shutdown"
	CmdSleep    Command = "sleep"
	CmdWake     Command = "wake"
	CmdStatus   Command = "status"
)

func (c Command) Valid() bool {
	switch c {
	case CmdShutdown, CmdSleep, CmdWake, CmdStatus:
		return true
	default:
		return false
	}
}

type ControlMessage struct {
	Cmd Command `json:"cmd"`
}

type Reply struct {
	OK    bool   `json:"ok"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// Server queues commands for the dialogue loop. Status is answered directly.
type Server struct {
	path     string
	requests chan Command
	state    atomic.Value
	log      *slog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func NewServer(path string, log *slog.Logger) *Server {
	if path == "" {
		path = DefaultSocketPath
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		path:     path,
		requests: make(chan Command, 8),
		log:      log,
	}
	s.state.Store("starting")
	return s
}

func (s *Server) Requests() <-chan Command { return s.requests }

// SetState records what status requests report.
func (s *Server) SetState(state string) { s.state.Store(state) }

func (s *Server) Start() error {
	_ = os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.accept(ln)

	s.log.Debug("Control socket listening", "path", s.path)
	return nil
}

func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	err := ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) accept(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("Control accept failed", "err", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		s.reply(conn, Reply{Error: "bad request: " + err.Error()})
		return
	}

	s.reply(conn, s.dispatch(msg.Cmd))
}

func (s *Server) dispatch(cmd Command) Reply {
	state, _ := s.state.Load().(string)

	switch {
	case !cmd.Valid():
		return Reply{Error: fmt.Sprintf("unknown command %q", cmd), State: state}
	case cmd == CmdStatus:
		return Reply{OK: true, State: state}
	}

	select {
	case s.requests <- cmd:
		s.log.Info("Control command queued", "cmd", cmd)
		return Reply{OK: true, State: state}
	default:
		return Reply{Error: "busy", State: state}
	}
}

func (s *Server) reply(conn net.Conn, r Reply) {
	if err := json.NewEncoder(conn).Encode(r); err != nil {
		s.log.Debug("Control reply failed", "err", err)
	}
}

// Send delivers one command to a running daemon and waits for its reply.
func Send(path string, cmd Command, timeout time.Duration) (Reply, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd}); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var r Reply
	if err := json.NewDecoder(conn).Decode(&r); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	if !r.OK {
		return r, errors.New(r.Error)
	}
	return r, nil
}
