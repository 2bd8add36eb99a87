package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"windy/internal/config"
)

// Method is a fallback way of leaving an audio artifact at path.
type Method interface {
	Name() string
	Record(ctx context.Context, path string) error
}

// CommandRunner runs an external program to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// CommandMethod records a fixed duration with a command line such as
// arecord or sox rec. {path} and {seconds} in Args are substituted.
type CommandMethod struct {
	Args     []string
	Duration time.Duration
	Run      CommandRunner
}

func (m *CommandMethod) Name() string {
	if len(m.Args) == 0 {
		return "command"
	}
	return filepath.Base(m.Args[0])
}

func (m *CommandMethod) Record(ctx context.Context, path string) error {
	if len(m.Args) == 0 {
		return errors.New("empty command")
	}

	secs := int(m.Duration.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}

	r := strings.NewReplacer("{path}", path, "{seconds}", strconv.Itoa(secs))
	args := make([]string, len(m.Args))
	for i, a := range m.Args {
		args[i] = r.Replace(a)
	}

	run := m.Run
	if run == nil {
		run = execRunner
	}

	// the command bounds itself, the extra slack only guards a hung binary
	cctx, cancel := context.WithTimeout(ctx, m.Duration+10*time.Second)
	defer cancel()

	return run(cctx, args[0], args[1:]...)
}

// ManualMethod hands recording to the operator: it prints where the file is
// expected and blocks until a line is entered. One reader goroutine serves
// every attempt, so an abandoned attempt never swallows the next line.
type ManualMethod struct {
	In  io.Reader
	Out io.Writer

	once  sync.Once
	lines chan error
}

func (m *ManualMethod) Name() string { return "manual" }

func (m *ManualMethod) Record(ctx context.Context, path string) error {
	if m.In == nil {
		return errors.New("no operator input")
	}
	m.once.Do(m.startReader)

	if m.Out != nil {
		fmt.Fprintf(m.Out, "Automatic recording failed. Save a recording to %s and press Enter: ", path)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-m.lines:
		return err
	}
}

func (m *ManualMethod) startReader() {
	m.lines = make(chan error)
	go func() {
		r := bufio.NewReader(m.In)
		for {
			_, err := r.ReadString('\n')
			if errors.Is(err, io.EOF) {
				err = nil
			}
			m.lines <- err
		}
	}()
}

// MethodsFromConfig builds the ordered fallback chain: configured commands,
// then the manual handoff.
func MethodsFromConfig(cfg config.FallbackConfig, in io.Reader, out io.Writer) []Method {
	var methods []Method
	for _, args := range cfg.Commands {
		if len(args) == 0 {
			continue
		}
		methods = append(methods, &CommandMethod{
			Args:     append([]string(nil), args...),
			Duration: cfg.Duration,
		})
	}
	if cfg.Manual && in != nil {
		methods = append(methods, &ManualMethod{In: in, Out: out})
	}
	return methods
}
