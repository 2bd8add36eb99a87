// Package respond generates assistant replies with a chat model, falling back
// to a designated local backend.
package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"windy/internal/backend"
	"windy/internal/session"
)

// Apology is spoken when no backend produced a reply.
const Apology = "I'm having trouble processing that right now."

var errEmptyReply = errors.New("empty reply")

type Backend interface {
	backend.Backend
	Complete(ctx context.Context, turns []session.Turn) (string, error)
}

type Responder struct {
	primary    Backend
	fallback   Backend
	maxHistory int
	timeout    time.Duration
	log        *slog.Logger
}

func New(primary, fallback Backend, maxHistory int, timeout time.Duration, log *slog.Logger) *Responder {
	if log == nil {
		log = slog.Default()
	}
	if fallback != nil && primary != nil && fallback.Name() == primary.Name() {
		fallback = nil
	}
	return &Responder{
		primary:    primary,
		fallback:   fallback,
		maxHistory: maxHistory,
		timeout:    timeout,
		log:        log,
	}
}

// Respond returns the model's reply to the conversation, or Apology.
func (r *Responder) Respond(ctx context.Context, turns []session.Turn) string {
	window := session.Window(turns, r.maxHistory)

	for _, b := range []Backend{r.primary, r.fallback} {
		if b == nil {
			continue
		}

		reply, err := r.complete(ctx, b, window)
		if err != nil {
			r.log.Warn("Response backend failed", "backend", b.Name(), "err", err)
			continue
		}
		return reply
	}

	return Apology
}

func (r *Responder) complete(ctx context.Context, b Backend, turns []session.Turn) (reply string, err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("backend panic: %v", p)
		}
	}()

	reply, err = b.Complete(ctx, turns)
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}
