// Package mutations wires user-facing actions to repositories, the cache
// coordinator and the optimistic machinery, with a uniform lifecycle:
// optimistic apply + snapshot, network call, commit or revert, then the
// cross-feature invalidation for the operation's tag.
package mutations

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/letterdesk/go-newsletter-cache/coordinator"
	"github.com/letterdesk/go-newsletter-cache/optimistic"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// Level classifies a toast message.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

// Toaster receives human-readable outcome messages. The data layer is fully
// functional with the sink disabled (Config.ShowToasts false).
type Toaster interface {
	Show(level Level, message string)
}

// NopToaster discards all messages.
type NopToaster struct{}

// Show implements Toaster.
func (NopToaster) Show(Level, string) {}

// Confirmer is the synchronous yes/no boundary used before destructive
// actions.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(prompt string) bool

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(prompt string) bool { return f(prompt) }

// Config holds handler-level switches.
type Config struct {
	// ShowToasts suppresses every toast when false, without altering any
	// other behavior.
	ShowToasts bool
}

// Deps bundles the collaborators every mutator needs. Zero-value optional
// fields are replaced with no-op implementations by Normalize.
type Deps struct {
	Repos       repository.Set
	Coordinator *coordinator.Coordinator
	Registry    *optimistic.Registry
	Users       repository.UserSupplier
	Toaster     Toaster
	Confirmer   Confirmer
	Logger      *zap.Logger
	Config      Config
}

// Normalize fills optional collaborators with safe defaults.
func (d Deps) Normalize() Deps {
	if d.Registry == nil {
		d.Registry = optimistic.NewRegistry()
	}
	if d.Users == nil {
		d.Users = repository.StaticUser("")
	}
	if d.Toaster == nil {
		d.Toaster = NopToaster{}
	}
	if d.Confirmer == nil {
		d.Confirmer = ConfirmerFunc(func(string) bool { return true })
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// toast emits a message unless toasts are disabled.
func (d Deps) toast(level Level, message string) {
	if !d.Config.ShowToasts || message == "" {
		return
	}
	d.Toaster.Show(level, message)
}

// toastError normalizes err and emits it as an error toast.
func (d Deps) toastError(err error) {
	message, _ := repository.Normalize(err)
	d.toast(LevelError, message)
}

// requireUser resolves the authenticated user or fails fast before any
// network call.
func (d Deps) requireUser(ctx context.Context) (string, error) {
	id, ok := d.Users.CurrentUserID(ctx)
	if !ok {
		return "", repository.ErrAuthRequired
	}
	return id, nil
}

// errState is the per-mutator resettable error affordance: a displayed
// error can be dismissed without retrying the operation.
type errState struct {
	mu  sync.Mutex
	err error
}

// Err returns the most recent recorded error, if any.
func (s *errState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ResetError dismisses the recorded error.
func (s *errState) ResetError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

func (s *errState) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
