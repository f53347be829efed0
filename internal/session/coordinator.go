// Package session runs installs and uninstalls in the background, at most one
// per target, and reports their progress as events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/internal/infrastructure"
	"github.com/Lynx96-creator/ets2-mod-api/internal/installer"
	"github.com/Lynx96-creator/ets2-mod-api/internal/shared"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// DefaultEventBuffer is the capacity of a session's event channel
const DefaultEventBuffer = 64

// LicenseValidator consumes serial keys
type LicenseValidator interface {
	ValidateAndRotateKey(ctx context.Context, displayName, presentedKey string) error
}

// CatalogLookup resolves a display name among the mods visible to an account
type CatalogLookup interface {
	Lookup(ctx context.Context, email, displayName string) (domain.CatalogEntry, error)
}

// ArtifactInstaller places and removes artifacts
type ArtifactInstaller interface {
	Install(ctx context.Context, entry domain.CatalogEntry, progress func(installer.Progress)) (installer.Result, error)
	Uninstall(ctx context.Context, internalName string) (bool, error)
}

// Broadcaster receives every session event, e.g. to push it to UI clients
type Broadcaster interface {
	PublishSession(ctx context.Context, event domain.SessionEvent)
}

// RefreshFunc is called after a session ends so the account's mod list can be
// reloaded
type RefreshFunc func(ctx context.Context, email, reason string)

// Coordinator owns the in-flight install and uninstall sessions
type Coordinator struct {
	license     LicenseValidator
	catalog     CatalogLookup
	installer   ArtifactInstaller
	broadcaster Broadcaster
	refresh     RefreshFunc
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*tracked

	// destination files, keyed by internal name
	paths shared.KeyedMutex

	wg         sync.WaitGroup
	bufferSize int
	now        func() time.Time
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithBroadcaster publishes every event to b
func WithBroadcaster(b Broadcaster) Option {
	return func(c *Coordinator) { c.broadcaster = b }
}

// WithRefresh sets the hook called after each session ends
func WithRefresh(fn RefreshFunc) Option {
	return func(c *Coordinator) { c.refresh = fn }
}

// WithEventBuffer sets the event channel capacity
func WithEventBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// NewCoordinator creates a session coordinator
func NewCoordinator(license LicenseValidator, catalog CatalogLookup, inst ArtifactInstaller, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	c := &Coordinator{
		license:    license,
		catalog:    catalog,
		installer:  inst,
		logger:     infrastructure.WithComponent(logger, "session_coordinator"),
		sessions:   make(map[string]*tracked),
		bufferSize: DefaultEventBuffer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tracked is one in-flight session
type tracked struct {
	key    string
	mu     sync.Mutex
	snap   domain.SessionSnapshot
	events chan domain.SessionEvent
	done   bool
}

func installKey(displayName string) string    { return "install:" + displayName }
func uninstallKey(internalName string) string { return "uninstall:" + internalName }

// StartInstall starts installing a mod visible to the session's account.
//
// The serial key is consumed before StartInstall returns. An invalid key ends
// the session with an invalid_key event and ErrSerialKeyInvalid. Otherwise
// the download runs in the background and the returned channel carries its
// progress and exactly one terminal event before it is closed.
func (c *Coordinator) StartInstall(ctx context.Context, sess domain.Session, displayName, presentedKey string) (<-chan domain.SessionEvent, error) {
	ctx = infrastructure.EnsureTraceID(ctx)

	entry, err := c.catalog.Lookup(ctx, sess.Email, displayName)
	if err != nil {
		return nil, err
	}

	t, err := c.reserve(installKey(entry.DisplayName), domain.SessionInstall, sess.Email, entry.DisplayName)
	if err != nil {
		return nil, err
	}
	c.emit(ctx, t, domain.PhasePreparing, 0, fmt.Sprintf("Preparing %s...", entry.DisplayName))

	if err := c.license.ValidateAndRotateKey(ctx, entry.DisplayName, presentedKey); err != nil {
		phase := domain.PhaseFailed
		if errors.Is(err, apperrors.ErrSerialKeyInvalid) {
			phase = domain.PhaseInvalidKey
		}
		c.finish(ctx, t, phase, apperrors.StatusText(err), "", err)
		return nil, err
	}

	c.logger.InfoContext(ctx, "Install session started",
		slog.String("session_id", t.snap.SessionID),
		slog.String("mod", entry.DisplayName),
		slog.String("email", sess.Email))

	worker := infrastructure.DetachedContext(ctx)
	c.wg.Add(1)
	shared.Go(c.logger, t.key, func() {
		defer c.wg.Done()
		defer c.recoverSession(worker, t)
		c.runInstall(worker, t, sess.Email, entry)
	})
	return t.events, nil
}

// StartUninstall starts removing the artifact of an internal name. The
// session ends with removed or not_found.
func (c *Coordinator) StartUninstall(ctx context.Context, sess domain.Session, internalName string) (<-chan domain.SessionEvent, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	internalName = strings.TrimSpace(internalName)

	t, err := c.reserve(uninstallKey(internalName), domain.SessionUninstall, sess.Email, internalName)
	if err != nil {
		return nil, err
	}
	c.emit(ctx, t, domain.PhaseRemoving, 0, fmt.Sprintf("Removing %s...", internalName))

	worker := infrastructure.DetachedContext(ctx)
	c.wg.Add(1)
	shared.Go(c.logger, t.key, func() {
		defer c.wg.Done()
		defer c.recoverSession(worker, t)
		c.runUninstall(worker, t, sess.Email, internalName)
	})
	return t.events, nil
}

func (c *Coordinator) runInstall(ctx context.Context, t *tracked, email string, entry domain.CatalogEntry) {
	result, err := func() (installer.Result, error) {
		unlock := c.paths.Lock(entry.InternalName)
		defer unlock()
		return c.installer.Install(ctx, entry, func(p installer.Progress) {
			if !p.Phase.IsTerminal() {
				c.emit(ctx, t, p.Phase, p.Percent, progressText(p))
			}
		})
	}()

	switch {
	case err != nil:
		c.finish(ctx, t, domain.PhaseFailed, apperrors.StatusText(err), "", err)
	case result.Phase == domain.PhaseInstalledUnprotected:
		c.finish(ctx, t, result.Phase, apperrors.StatusText(result.ProtectionErr), result.Path, result.ProtectionErr)
	default:
		c.finish(ctx, t, domain.PhaseInstalled, "Installed", result.Path, nil)
	}

	c.notifyRefresh(ctx, email, "install")
}

func (c *Coordinator) runUninstall(ctx context.Context, t *tracked, email, internalName string) {
	removed, err := func() (bool, error) {
		unlock := c.paths.Lock(internalName)
		defer unlock()
		return c.installer.Uninstall(ctx, internalName)
	}()

	switch {
	case err != nil:
		c.finish(ctx, t, domain.PhaseFailed, apperrors.StatusText(err), "", err)
	case removed:
		c.finish(ctx, t, domain.PhaseRemoved, "Uninstalled", "", nil)
	default:
		c.finish(ctx, t, domain.PhaseNotFound, apperrors.StatusText(apperrors.ErrNotFound), "", nil)
	}

	c.notifyRefresh(ctx, email, "uninstall")
}

// recoverSession ends a session whose worker panicked, then re-panics so the
// goroutine wrapper logs it
func (c *Coordinator) recoverSession(ctx context.Context, t *tracked) {
	if r := recover(); r != nil {
		c.finish(ctx, t, domain.PhaseFailed, "Unexpected error", "", fmt.Errorf("panic: %v", r))
		panic(r)
	}
}

// reserve claims the single slot of key
func (c *Coordinator) reserve(key string, kind domain.SessionKind, email, target string) (*tracked, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.sessions[key]; busy {
		text := "Installation already in progress"
		if kind == domain.SessionUninstall {
			text = "Uninstallation already in progress"
		}
		return nil, apperrors.Wrap(apperrors.ErrAlreadyInProgress, text, nil).WithContext("target", target)
	}

	now := c.now()
	t := &tracked{
		key: key,
		snap: domain.SessionSnapshot{
			SessionID: uuid.NewString(),
			Kind:      kind,
			Email:     email,
			Target:    target,
			Phase:     domain.PhaseIdle,
			StartedAt: now,
			UpdatedAt: now,
		},
		events: make(chan domain.SessionEvent, c.bufferSize),
	}
	c.sessions[key] = t
	return t, nil
}

// emit records and delivers a progress event. Delivery to the channel is
// lossy when the reader falls behind.
func (c *Coordinator) emit(ctx context.Context, t *tracked, phase domain.InstallPhase, percent int, status string) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	if percent < t.snap.Progress {
		percent = t.snap.Progress
	}
	t.snap.Phase = phase
	t.snap.Progress = percent
	t.snap.Status = status
	t.snap.UpdatedAt = c.now()
	event := t.event()
	t.mu.Unlock()

	select {
	case t.events <- event:
	default:
	}
	c.publish(ctx, event)
}

// finish delivers the terminal event, closes the channel and frees the slot
func (c *Coordinator) finish(ctx context.Context, t *tracked, phase domain.InstallPhase, status, path string, cause error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.snap.Phase = phase
	if phase == domain.PhaseInstalled || phase == domain.PhaseInstalledUnprotected {
		t.snap.Progress = 100
	}
	t.snap.Status = status
	t.snap.UpdatedAt = c.now()
	event := t.event()
	event.Terminal = true
	event.Path = path
	if cause != nil {
		event.Error = cause.Error()
	}
	t.mu.Unlock()

	// the terminal event always fits: drop the oldest progress event if needed
	select {
	case t.events <- event:
	default:
		select {
		case <-t.events:
		default:
		}
		t.events <- event
	}
	close(t.events)

	c.mu.Lock()
	delete(c.sessions, t.key)
	c.mu.Unlock()

	c.publish(ctx, event)

	attrs := []any{
		slog.String("session_id", event.SessionID),
		slog.String("kind", string(event.Kind)),
		slog.String("target", event.Target),
		slog.String("phase", string(phase)),
		slog.String("status", status),
	}
	if phase == domain.PhaseFailed {
		c.logger.WarnContext(ctx, "Session failed", append(attrs, slog.String("error", event.Error))...)
		return
	}
	c.logger.InfoContext(ctx, "Session finished", attrs...)
}

func (t *tracked) event() domain.SessionEvent {
	return domain.SessionEvent{
		SessionID: t.snap.SessionID,
		Kind:      t.snap.Kind,
		Email:     t.snap.Email,
		Target:    t.snap.Target,
		Phase:     t.snap.Phase,
		Progress:  t.snap.Progress,
		Status:    t.snap.Status,
		Timestamp: t.snap.UpdatedAt,
	}
}

func (c *Coordinator) publish(ctx context.Context, event domain.SessionEvent) {
	if c.broadcaster != nil {
		c.broadcaster.PublishSession(ctx, event)
	}
}

func (c *Coordinator) notifyRefresh(ctx context.Context, email, reason string) {
	if c.refresh != nil {
		c.refresh(ctx, email, reason)
	}
}

// Active returns the in-flight sessions, oldest first
func (c *Coordinator) Active() []domain.SessionSnapshot {
	c.mu.Lock()
	list := make([]*tracked, 0, len(c.sessions))
	for _, t := range c.sessions {
		list = append(list, t)
	}
	c.mu.Unlock()

	snaps := make([]domain.SessionSnapshot, 0, len(list))
	for _, t := range list {
		t.mu.Lock()
		snaps = append(snaps, t.snap)
		t.mu.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].StartedAt.Before(snaps[j].StartedAt) })
	return snaps
}

// Wait blocks until all background workers have returned or ctx ends
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func progressText(p installer.Progress) string {
	switch p.Phase {
	case domain.PhaseRetrieving:
		if p.Total > 0 {
			return fmt.Sprintf("Downloading: %d%%", p.Percent)
		}
		return "Downloading..."
	case domain.PhaseVerifying:
		return "Verifying download"
	case domain.PhaseFinalizing:
		return "Finalizing"
	default:
		return "Initializing Download..."
	}
}
