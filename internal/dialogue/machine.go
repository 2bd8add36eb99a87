// Package dialogue runs the wake/sleep conversation loop.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"windy/internal/audio"
	"windy/internal/bus"
	"windy/internal/config"
	"windy/internal/ipc"
	"windy/internal/phrase"
	"windy/internal/session"
)

type State int

const (
	Sleeping State = iota
	Active
	Shutdown
)

func (s State) String() string {
	switch s {
	case Sleeping:
		return "sleeping"
	case Active:
		return "active"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

type Capturer interface {
	Capture(ctx context.Context, p audio.Profile, path string) (*audio.Result, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) string
}

type Responder interface {
	Respond(ctx context.Context, turns []session.Turn) string
}

type Sanitizer interface {
	Sanitize(raw string) string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, path string) error
	Ext() string
}

type Player interface {
	Play(ctx context.Context, path string) error
}

type Publisher interface {
	Publish(kind, session, content string)
}

type Options struct {
	WakePhrases     []string
	SleepPhrases    []string
	ShutdownPhrases []string

	Wake         audio.Profile
	Conversation audio.Profile

	SystemPrompt string
	Greeting     string
	Farewell     string

	WorkDir     string
	SleepPause  time.Duration
	ActivePause time.Duration
	LoopPause   time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		WakePhrases:     cfg.Phrases.Wake,
		SleepPhrases:    cfg.Phrases.Sleep,
		ShutdownPhrases: cfg.Phrases.Shutdown,
		Wake:            audio.ProfileFromConfig(audio.KindWake, cfg.Audio.Wake),
		Conversation:    audio.ProfileFromConfig(audio.KindConversation, cfg.Audio.Conversation),
		SystemPrompt:    cfg.Assistant.SystemPrompt,
		Greeting:        cfg.Assistant.Greeting,
		Farewell:        cfg.Assistant.Farewell,
		WorkDir:         cfg.Runtime.WorkDir,
		SleepPause:      cfg.Runtime.SleepPause,
		ActivePause:     cfg.Runtime.ActivePause,
		LoopPause:       cfg.Runtime.LoopPause,
	}
}

type Deps struct {
	Capturer    Capturer
	Transcriber Transcriber
	Responder   Responder
	Sanitizer   Sanitizer
	Synthesizer Synthesizer
	Player      Player

	// Optional.
	Events  Publisher
	Control <-chan ipc.Command
	OnState func(State)
	FS      afero.Fs
	Log     *slog.Logger
}

// Machine owns the Session. It is driven by a single goroutine.
type Machine struct {
	opt  Options
	deps Deps
	fs   afero.Fs
	log  *slog.Logger

	wake     *phrase.Matcher
	sleep    *phrase.Matcher
	shutdown *phrase.Matcher

	sess  *session.Session
	state State

	pause func(ctx context.Context, d time.Duration)
}

func New(opt Options, deps Deps) (*Machine, error) {
	switch {
	case deps.Capturer == nil:
		return nil, errors.New("dialogue: nil capturer")
	case deps.Transcriber == nil:
		return nil, errors.New("dialogue: nil transcriber")
	case deps.Responder == nil:
		return nil, errors.New("dialogue: nil responder")
	case deps.Sanitizer == nil:
		return nil, errors.New("dialogue: nil sanitizer")
	case deps.Synthesizer == nil:
		return nil, errors.New("dialogue: nil synthesizer")
	case deps.Player == nil:
		return nil, errors.New("dialogue: nil player")
	}

	wake, err := phrase.Compile(opt.WakePhrases)
	if err != nil {
		return nil, fmt.Errorf("wake phrases: %w", err)
	}
	sleep, err := phrase.Compile(opt.SleepPhrases)
	if err != nil {
		return nil, fmt.Errorf("sleep phrases: %w", err)
	}
	shutdown, err := phrase.Compile(opt.ShutdownPhrases)
	if err != nil {
		return nil, fmt.Errorf("shutdown phrases: %w", err)
	}

	fs := deps.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if opt.WorkDir == "" {
		opt.WorkDir = filepath.Join(os.TempDir(), "windy")
	}
	if err := fs.MkdirAll(opt.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}

	return &Machine{
		opt:      opt,
		deps:     deps,
		fs:       fs,
		log:      log,
		wake:     wake,
		sleep:    sleep,
		shutdown: shutdown,
		sess:     session.New(opt.SystemPrompt),
		state:    Sleeping,
		pause:    sleepCtx,
	}, nil
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Session() *session.Session { return m.sess }

// Run loops until a shutdown phrase, a shutdown command or ctx ends.
// Cancellation is only observed between iterations; an iteration in flight
// finishes on its own.
func (m *Machine) Run(ctx context.Context) {
	m.log.Info("Listening for wake phrase", "wake", m.wake.Phrases(), "sleep", m.sleep.Phrases())
	m.notify()

	for {
		if ctx.Err() != nil {
			m.log.Info("Interrupted")
			m.enterShutdown("interrupt")
			return
		}

		m.handleControl(ctx)
		if m.state == Shutdown {
			return
		}

		m.Step(ctx)
		if m.state == Shutdown {
			return
		}
	}
}

// Step runs one sleeping cycle or one active turn. Failures are logged and
// followed by a pause; the state is left as it was.
func (m *Machine) Step(ctx context.Context) {
	work := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Dialogue loop panic", "state", m.state, "panic", r, "stack", string(debug.Stack()))
			m.pause(ctx, m.opt.LoopPause)
		}
	}()

	switch m.state {
	case Sleeping:
		if err := m.sleepingCycle(work); err != nil {
			m.log.Error("Wake listening failed", "err", err)
			m.pause(ctx, m.opt.SleepPause)
		}
	case Active:
		if err := m.activeTurn(work); err != nil {
			m.log.Error("Conversation turn failed", "err", err)
			m.pause(ctx, m.opt.ActivePause)
		}
	}
}

func (m *Machine) sleepingCycle(ctx context.Context) error {
	path := m.artifact("wake", ".wav")
	defer m.remove(path)

	res, err := m.deps.Capturer.Capture(ctx, m.opt.Wake, path)
	if err != nil {
		if errors.Is(err, audio.ErrCaptureTimeout) {
			return nil
		}
		return err
	}

	text := m.deps.Transcriber.Transcribe(ctx, res.Path)
	if text == "" {
		return nil
	}

	p, ok := m.wake.Match(text)
	if !ok {
		m.log.Debug("No wake phrase", "text", text)
		return nil
	}

	m.log.Info("Wake phrase detected", "phrase", p, "text", text)
	m.enterActive(ctx, text)
	return nil
}

func (m *Machine) activeTurn(ctx context.Context) error {
	in := m.artifact("input", ".wav")
	defer m.remove(in)

	res, err := m.deps.Capturer.Capture(ctx, m.opt.Conversation, in)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	text := m.deps.Transcriber.Transcribe(ctx, res.Path)
	if text == "" {
		m.log.Debug("Nothing transcribed, listening again")
		return nil
	}
	m.log.Info("Heard", "text", text)

	if p, ok := m.sleep.Match(text); ok {
		m.log.Info("Sleep phrase detected", "phrase", p)
		m.enterSleeping(ctx, text)
		return nil
	}
	if p, ok := m.shutdown.Match(text); ok {
		m.log.Info("Shutdown phrase detected", "phrase", p)
		m.enterShutdown(text)
		return nil
	}

	m.sess.AddUser(text)
	m.publish(bus.KindUser, text)

	reply := m.deps.Sanitizer.Sanitize(m.deps.Responder.Respond(ctx, m.sess.Turns()))
	m.sess.AddAssistant(reply)
	m.publish(bus.KindReply, reply)

	m.log.Info("Reply", "text", reply, "turns", m.sess.Len())

	return m.speak(ctx, reply)
}

func (m *Machine) handleControl(ctx context.Context) {
	if m.deps.Control == nil {
		return
	}

	work := context.WithoutCancel(ctx)
	for {
		select {
		case cmd := <-m.deps.Control:
			m.log.Info("Operator command", "cmd", cmd, "state", m.state)

			switch {
			case cmd == ipc.CmdShutdown:
				m.enterShutdown("operator")
				return
			case cmd == ipc.CmdSleep && m.state == Active:
				m.enterSleeping(work, "operator")
			case cmd == ipc.CmdWake && m.state == Sleeping:
				m.enterActive(work, "operator")
			}
		default:
			return
		}
	}
}

func (m *Machine) enterActive(ctx context.Context, trigger string) {
	if err := m.speak(ctx, m.opt.Greeting); err != nil {
		m.log.Warn("Greeting failed", "err", err)
	}

	m.sess.Reset()
	m.sess.Mode = session.Active
	m.setState(Active)
	m.publish(bus.KindWake, trigger)
}

func (m *Machine) enterSleeping(ctx context.Context, trigger string) {
	if err := m.speak(ctx, m.opt.Farewell); err != nil {
		m.log.Warn("Farewell failed", "err", err)
	}

	m.publish(bus.KindSleep, trigger)
	m.sess.Reset()
	m.sess.Mode = session.Sleeping
	m.setState(Sleeping)
}

func (m *Machine) enterShutdown(trigger string) {
	m.publish(bus.KindShutdown, trigger)
	m.setState(Shutdown)
}

func (m *Machine) setState(s State) {
	if m.state == s {
		return
	}
	m.log.Info("State changed", "from", m.state, "to", s)
	m.state = s
	m.notify()
}

func (m *Machine) notify() {
	if m.deps.OnState != nil {
		m.deps.OnState(m.state)
	}
}

// speak synthesizes text to a throwaway file and plays it. Playback
// failures are logged only.
func (m *Machine) speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	out := m.artifact("reply", m.deps.Synthesizer.Ext())
	defer m.remove(out)

	if err := m.deps.Synthesizer.Synthesize(ctx, text, out); err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	if err := m.deps.Player.Play(ctx, out); err != nil {
		m.log.Warn("Playback failed", "err", err)
	}
	return nil
}

func (m *Machine) publish(kind, content string) {
	if m.deps.Events != nil {
		m.deps.Events.Publish(kind, m.sess.ID, content)
	}
}

func (m *Machine) artifact(prefix, ext string) string {
	return filepath.Join(m.opt.WorkDir, prefix+"-"+uuid.NewString()+ext)
}

func (m *Machine) remove(path string) {
	if err := m.fs.Remove(path); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
		m.log.Debug("Failed to remove artifact", "path", path, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
