package backend

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stub struct {
	name string
	err  error
}

func (s stub) Name() string     { return s.name }
func (s stub) Available() error { return s.err }

func newTestRegistry() *Registry[stub] {
	r := NewRegistry[stub]("test")
	r.Register(stub{name: "local"})
	r.Register(stub{name: "remote", err: errors.New("no key")})
	return r
}

func TestResolve(t *testing.T) {
	r := newTestRegistry()

	b, err := r.Resolve("local")
	require.NoError(t, err)
	assert.Equal(t, "local", b.Name())

	_, err = r.Resolve("remote")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorContains(t, err, "no key")

	_, err = r.Resolve("nope")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestResolveChain(t *testing.T) {
	r := newTestRegistry()
	r.Register(stub{name: "other"})

	chain := r.ResolveChain([]string{"remote", "other", "missing", "local", "other"}, nil)

	names := make([]string, len(chain))
	for i, b := range chain {
		names[i] = b.Name()
	}
	assert.Equal(t, []string{"other", "local"}, names)
	assert.Equal(t, []string{"local", "other", "remote"}, r.Names())
}

func TestRequireHelpers(t *testing.T) {
	t.Setenv("WINDY_TEST_TOKEN", "")
	assert.Error(t, RequireEnv("WINDY_TEST_TOKEN"))
	t.Setenv("WINDY_TEST_TOKEN", "x")
	assert.NoError(t, RequireEnv("WINDY_TEST_TOKEN"))

	assert.Error(t, RequireExecutable("windy-definitely-not-installed"))

	dir := t.TempDir()
	file := filepath.Join(dir, "model.bin")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.NoError(t, RequireFile(file))
	assert.Error(t, RequireFile(dir))
	assert.Error(t, RequireFile(filepath.Join(dir, "missing")))
}
