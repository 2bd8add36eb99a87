// Package session holds the conversation state owned by the dialogue loop.
package session

import (
	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role
	Content string
}

type Mode int

const (
	Sleeping Mode = iota
	Active
)

func (m Mode) String() string {
	switch m {
	case Sleeping:
		return "sleeping"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Session is an append-only conversation that always starts with exactly one
// system turn.
type Session struct {
	ID   string
	Mode Mode

	systemPrompt string
	turns        []Turn

	UserTurns      int
	AssistantTurns int
}

func New(systemPrompt string) *Session {
	s := &Session{systemPrompt: systemPrompt}
	s.Reset()
	return s
}

// Reset drops the conversation and starts a new one under a fresh ID. The
// mode is left to the caller.
func (s *Session) Reset() {
	s.ID = uuid.NewString()
	s.turns = []Turn{{Role: RoleSystem, Content: s.systemPrompt}}
	s.UserTurns = 0
	s.AssistantTurns = 0
}

func (s *Session) AddUser(content string) {
	s.turns = append(s.turns, Turn{Role: RoleUser, Content: content})
	s.UserTurns++
}

func (s *Session) AddAssistant(content string) {
	s.turns = append(s.turns, Turn{Role: RoleAssistant, Content: content})
	s.AssistantTurns++
}

// Turns returns a copy of the whole conversation.
func (s *Session) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

func (s *Session) Len() int { return len(s.turns) }

// Window returns the system turn followed by the last n other turns. n <= 0
// returns everything.
func Window(turns []Turn, n int) []Turn {
	if len(turns) == 0 {
		return nil
	}
	if n <= 0 || len(turns)-1 <= n {
		return append([]Turn(nil), turns...)
	}

	out := make([]Turn, 0, n+1)
	out = append(out, turns[0])
	out = append(out, turns[len(turns)-n:]...)
	return out
}
