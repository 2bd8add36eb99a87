// Package backend resolves named engines (transcription, chat, speech) once
// at startup, checking that each one can actually run here.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sort"
)

var ErrBackendUnavailable = errors.New("backend unavailable")

type Backend interface {
	Name() string
	// Available reports why the backend cannot be used, nil if it can.
	Available() error
}

type Registry[T Backend] struct {
	kind  string
	items map[string]T
}

func NewRegistry[T Backend](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, items: make(map[string]T)}
}

func (r *Registry[T]) Register(b T) {
	r.items[b.Name()] = b
}

func (r *Registry[T]) Names() []string {
	names := make([]string, 0, len(r.items))
	for n := range r.items {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the named backend if it is registered and available.
func (r *Registry[T]) Resolve(name string) (T, error) {
	var zero T

	b, ok := r.items[name]
	if !ok {
		return zero, fmt.Errorf("%w: unknown %s backend %q (have %v)", ErrBackendUnavailable, r.kind, name, r.Names())
	}
	if err := b.Available(); err != nil {
		return zero, fmt.Errorf("%w: %s backend %q: %w", ErrBackendUnavailable, r.kind, name, err)
	}
	return b, nil
}

// ResolveChain resolves names in order, skipping and logging the ones that
// are unavailable. Duplicates are kept once.
func (r *Registry[T]) ResolveChain(names []string, log *slog.Logger) []T {
	if log == nil {
		log = slog.Default()
	}

	var (
		out  []T
		seen []string
	)
	for _, n := range names {
		if slices.Contains(seen, n) {
			continue
		}
		seen = append(seen, n)

		b, err := r.Resolve(n)
		if err != nil {
			log.Warn("Skipping backend", "kind", r.kind, "name", n, "err", err)
			continue
		}
		out = append(out, b)
	}
	return out
}

// RequireEnv is an Available helper for backends keyed by an API token.
func RequireEnv(key string) error {
	if os.Getenv(key) == "" {
		return fmt.Errorf("%s is not set", key)
	}
	return nil
}

// RequireExecutable is an Available helper for subprocess backends.
func RequireExecutable(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found: %w", name, err)
	}
	return nil
}

// RequireFile is an Available helper for backends that load a model file.
func RequireFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
