package audio

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windy/internal/config"
)

func TestCommandMethodSubstitutesPlaceholders(t *testing.T) {
	var gotName string
	var gotArgs []string

	m := &CommandMethod{
		Args:     []string{"/usr/bin/arecord", "-d", "{seconds}", "-t", "wav", "{path}"},
		Duration: 5 * time.Second,
		Run: func(ctx context.Context, name string, args ...string) error {
			gotName = name
			gotArgs = args
			return nil
		},
	}

	require.NoError(t, m.Record(context.Background(), "/tmp/x.wav"))
	assert.Equal(t, "arecord", m.Name())
	assert.Equal(t, "/usr/bin/arecord", gotName)
	assert.Equal(t, []string{"-d", "5", "-t", "wav", "/tmp/x.wav"}, gotArgs)
}

func TestCommandMethodMinimumOneSecond(t *testing.T) {
	var gotArgs []string
	m := &CommandMethod{
		Args: []string{"rec", "{path}", "trim", "0", "{seconds}"},
		Run: func(ctx context.Context, name string, args ...string) error {
			gotArgs = args
			return nil
		},
	}

	require.NoError(t, m.Record(context.Background(), "a.wav"))
	assert.Equal(t, []string{"a.wav", "trim", "0", "1"}, gotArgs)
}

func TestCommandMethodEmpty(t *testing.T) {
	m := &CommandMethod{}
	assert.Equal(t, "command", m.Name())
	assert.Error(t, m.Record(context.Background(), "a.wav"))
}

func TestManualMethodWaitsForLine(t *testing.T) {
	var out bytes.Buffer
	m := &ManualMethod{In: strings.NewReader("\n"), Out: &out}

	require.NoError(t, m.Record(context.Background(), "/tmp/in.wav"))
	assert.Contains(t, out.String(), "/tmp/in.wav")
	assert.Equal(t, "manual", m.Name())
}

func TestManualMethodCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	m := &ManualMethod{In: r}
	assert.ErrorIs(t, m.Record(ctx, "/tmp/in.wav"), context.DeadlineExceeded)
}

func TestManualMethodLineGoesToLiveAttempt(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	m := &ManualMethod{In: r}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.Record(ctx, "/tmp/first.wav"), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- m.Record(context.Background(), "/tmp/second.wav") }()

	_, err := w.Write([]byte("\n"))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("line consumed by the abandoned attempt")
	}
}

func TestMethodsFromConfig(t *testing.T) {
	cfg := config.FallbackConfig{
		Duration: 3 * time.Second,
		Commands: [][]string{
			{"arecord", "{path}"},
			{},
			{"rec", "{path}"},
		},
		Manual: true,
	}

	methods := MethodsFromConfig(cfg, strings.NewReader(""), io.Discard)
	require.Len(t, methods, 3)

	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.Name()
	}
	assert.Equal(t, []string{"arecord", "rec", "manual"}, names)

	assert.Len(t, MethodsFromConfig(cfg, nil, nil), 2)
}
