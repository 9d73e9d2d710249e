// Package session owns the mapping from logical session ids to tmux windows
// running ssh. The tmux server is the durable store; the in-process registry
// is a cache rebuilt from the window list on demand, so sessions survive
// restarts of this process.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simon/sshmux/internal/policy"
	"github.com/simon/sshmux/internal/screen"
	"github.com/simon/sshmux/internal/sshcfg"
	"github.com/simon/sshmux/internal/tmux"
)

// windowNameRe is the naming convention for session windows:
// [user@]host-XXXX with a 4-hex-digit suffix. Windows matching it are
// adopted on reconcile even when another process created them.
var windowNameRe = regexp.MustCompile(`^(?:[A-Za-z0-9._-]+@)?[A-Za-z0-9._-]+-[0-9a-f]{4}$`)

// placeholderNames are default window names tmux gives the initial window of
// a fresh session. They are killed so the container disappears cleanly once
// the last ssh window closes.
var placeholderNames = map[string]bool{"0": true, "sh": true, "bash": true, "zsh": true, "fish": true}

// PollPolicy is a bounded retry budget for one suspend point.
type PollPolicy struct {
	Interval time.Duration
	Attempts int
}

// Options configures a Manager.
type Options struct {
	// Container is the shared tmux session all windows live in.
	Container string
	// CaptureLines is the default snapshot depth.
	CaptureLines int
	// KillPlaceholder removes the container's default shell window.
	KillPlaceholder bool
	// Settle bounds the wait after SendCommand before the final capture.
	Settle PollPolicy
	// Transfer bounds marker polling during file reads and writes.
	Transfer PollPolicy
}

// Recorder receives audit events. Implementations must tolerate being called
// concurrently; a nil Recorder disables auditing.
type Recorder interface {
	RecordOpen(id, host, hostname, user string, port int) error
	RecordClose(id string) error
	RecordCommand(sessionID, command, verdict, reason string) error
}

// Session is the public view of one open session.
type Session struct {
	ID        string
	Conn      sshcfg.Params
	CreatedAt time.Time
}

// Result is the outcome of SendCommand: the post-settle snapshot plus the
// policy verdict (Warn verdicts are surfaced here, not as errors).
type Result struct {
	Snapshot screen.Snapshot
	Verdict  policy.Verdict
}

type entry struct {
	mu   sync.Mutex // serializes keystroke-sending ops per session
	sess Session
}

// Manager implements the session core. One mutex guards the registry;
// per-session locks serialize operations that send keystrokes to the same
// PTY. Snapshot captures take neither keystroke lock so they work while a
// command is still settling.
type Manager struct {
	ctl       tmux.Controller
	resolver  *sshcfg.Resolver
	validator *policy.Validator
	recorder  Recorder
	opts      Options
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	closed   map[string]struct{} // ids are never reused within a process lifetime
}

// NewManager wires the session core. recorder may be nil.
func NewManager(ctl tmux.Controller, resolver *sshcfg.Resolver, validator *policy.Validator, recorder Recorder, opts Options, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if opts.Container == "" {
		opts.Container = "sshmux"
	}
	if opts.CaptureLines <= 0 {
		opts.CaptureLines = 40
	}
	if opts.Settle.Attempts <= 0 {
		opts.Settle = PollPolicy{Interval: 200 * time.Millisecond, Attempts: 10}
	}
	if opts.Transfer.Attempts <= 0 {
		opts.Transfer = PollPolicy{Interval: 500 * time.Millisecond, Attempts: 20}
	}
	return &Manager{
		ctl:       ctl,
		resolver:  resolver,
		validator: validator,
		recorder:  recorder,
		opts:      opts,
		log:       log,
		sessions:  make(map[string]*entry),
		closed:    make(map[string]struct{}),
	}
}

// OpenSession resolves host, creates a new window running ssh, and returns
// the session with an initial snapshot. The shared container is created
// lazily on the first open.
func (m *Manager) OpenSession(ctx context.Context, host, username string, port int) (Session, screen.Snapshot, error) {
	params, err := m.resolver.Resolve(ctx, host, username, port)
	if err != nil {
		return Session{}, screen.Snapshot{}, err
	}

	m.mu.Lock()
	sess, err := m.openLocked(params)
	m.mu.Unlock()
	if err != nil {
		return Session{}, screen.Snapshot{}, err
	}

	m.log.Info("session opened",
		slog.String("session_id", sess.ID),
		slog.String("host", params.Hostname))

	if m.recorder != nil {
		if err := m.recorder.RecordOpen(sess.ID, params.Alias, params.Hostname, params.User, params.Port); err != nil {
			m.log.Warn("audit record failed", slog.String("err", err.Error()))
		}
	}

	// Give ssh a moment to print its first screen (banner, prompt, or a
	// connection error kept visible by remain-on-exit).
	_ = sleepCtx(ctx, m.opts.Settle.Interval)
	snap, err := m.capture(sess.ID, 0)
	if err != nil {
		return sess, screen.Snapshot{}, err
	}
	return sess, snap, nil
}

func (m *Manager) openLocked(params sshcfg.Params) (Session, error) {
	if err := m.ctl.EnsureSession(m.opts.Container); err != nil {
		return Session{}, fmt.Errorf("%w: create container: %v", ErrMultiplexer, err)
	}

	id, err := m.newIDLocked(params)
	if err != nil {
		return Session{}, err
	}

	if err := m.ctl.NewWindow(m.opts.Container, id, params.CommandLine()); err != nil {
		return Session{}, fmt.Errorf("%w: create window: %v", ErrMultiplexer, err)
	}
	// Keep the window around after ssh exits so the final screen (for
	// example "Connection refused") stays inspectable.
	if err := m.ctl.SetWindowOption(m.opts.Container, id, "remain-on-exit", "on"); err != nil {
		return Session{}, fmt.Errorf("%w: set remain-on-exit: %v", ErrMultiplexer, err)
	}

	if m.opts.KillPlaceholder {
		m.killPlaceholdersLocked(id)
	}

	sess := Session{ID: id, Conn: params, CreatedAt: time.Now()}
	m.sessions[id] = &entry{sess: sess}
	return sess, nil
}

// newIDLocked derives a window name from the connection target plus a short
// random suffix, retrying on the unlikely collision with a live window.
func (m *Manager) newIDLocked(params sshcfg.Params) (string, error) {
	base := strings.ReplaceAll(params.Target(), ":", ".")
	live := map[string]bool{}
	if wins, err := m.ctl.ListWindows(m.opts.Container); err == nil {
		for _, w := range wins {
			live[w.Name] = true
		}
	}
	for attempt := 0; attempt < 8; attempt++ {
		u := uuid.New()
		id := fmt.Sprintf("%s-%x", base, u[:2])
		if _, taken := m.sessions[id]; taken {
			continue
		}
		if _, used := m.closed[id]; used {
			continue
		}
		if live[id] {
			continue
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: could not allocate a window name for %q", ErrMultiplexer, base)
}

func (m *Manager) killPlaceholdersLocked(keep string) {
	wins, err := m.ctl.ListWindows(m.opts.Container)
	if err != nil {
		return
	}
	for _, w := range wins {
		if w.Name != keep && placeholderNames[w.Name] {
			_ = m.ctl.KillWindow(m.opts.Container, w.Name)
		}
	}
}

// GetSnapshot captures and sanitizes the last lines rows of a session's
// pane. It sends no keystrokes and may be called at any time.
func (m *Manager) GetSnapshot(ctx context.Context, id string, lines int) (screen.Snapshot, error) {
	if _, err := m.checkout(id); err != nil {
		return screen.Snapshot{}, err
	}
	return m.capture(id, lines)
}

// SendCommand validates, sends, settles, and captures. Block verdicts fail
// before any terminal contact; Warn verdicts proceed and are surfaced in the
// Result. Settling is a bounded poll, not completion detection: the capture
// happens when a prompt-like hint appears or the budget runs out, whichever
// comes first.
func (m *Manager) SendCommand(ctx context.Context, id, command string, lines int) (Result, error) {
	verdict := m.validator.Validate(command)
	if m.recorder != nil {
		reason := verdict.Reason
		if err := m.recorder.RecordCommand(id, command, verdict.Action.String(), reason); err != nil {
			m.log.Warn("audit record failed", slog.String("err", err.Error()))
		}
	}
	if verdict.Action == policy.Block {
		m.log.Warn("command blocked",
			slog.String("session_id", id),
			slog.String("reason", verdict.Reason))
		return Result{Verdict: verdict}, fmt.Errorf("%w: %s", ErrBlocked, verdict.Reason)
	}

	ent, err := m.checkout(id)
	if err != nil {
		return Result{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if err := m.ctl.SendKeys(m.opts.Container, id, command); err != nil {
		return Result{}, fmt.Errorf("%w: send keys: %v", ErrMultiplexer, err)
	}

	var snap screen.Snapshot
	for attempt := 0; attempt < m.opts.Settle.Attempts; attempt++ {
		if err := sleepCtx(ctx, m.opts.Settle.Interval); err != nil {
			return Result{}, err
		}
		snap, err = m.capture(id, lines)
		if err != nil {
			return Result{}, err
		}
		if snap.Hint != "" {
			break
		}
	}
	return Result{Snapshot: snap, Verdict: verdict}, nil
}

// ListSessions reconciles the registry against the live window list and
// returns all open sessions, oldest first. Windows created by a previous
// process and matching the naming convention are adopted here.
func (m *Manager) ListSessions(ctx context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reconcileLocked(); err != nil {
		return nil, err
	}

	out := make([]Session, 0, len(m.sessions))
	for _, ent := range m.sessions {
		out = append(out, ent.sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CloseSession captures the final screen, kills the window, and tears down
// the container when no tracked session remains. Closing an unknown or
// already-closed id fails with ErrSessionNotFound.
func (m *Manager) CloseSession(ctx context.Context, id string) (screen.Snapshot, error) {
	ent, err := m.checkout(id)
	if err != nil {
		return screen.Snapshot{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	final, _ := m.capture(id, 0) // best effort; the window may already be dying

	if err := m.ctl.KillWindow(m.opts.Container, id); err != nil {
		return screen.Snapshot{}, fmt.Errorf("%w: kill window: %v", ErrMultiplexer, err)
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.closed[id] = struct{}{}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if m.recorder != nil {
		if err := m.recorder.RecordClose(id); err != nil {
			m.log.Warn("audit record failed", slog.String("err", err.Error()))
		}
	}
	m.log.Info("session closed", slog.String("session_id", id))

	if remaining == 0 && m.ctl.HasSession(m.opts.Container) {
		if err := m.ctl.KillSession(m.opts.Container); err != nil {
			m.log.Warn("container teardown failed", slog.String("err", err.Error()))
		}
	}
	return final, nil
}

// checkout reconciles and returns the entry for id, or ErrSessionNotFound.
func (m *Manager) checkout(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reconcileLocked(); err != nil {
		return nil, err
	}
	ent, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return ent, nil
}

// reconcileLocked aligns the registry with the multiplexer: entries whose
// window vanished are pruned, and live windows matching the naming
// convention but unknown to this process are adopted.
func (m *Manager) reconcileLocked() error {
	if !m.ctl.HasSession(m.opts.Container) {
		for id := range m.sessions {
			delete(m.sessions, id)
			m.closed[id] = struct{}{}
		}
		return nil
	}

	wins, err := m.ctl.ListWindows(m.opts.Container)
	if err != nil {
		return fmt.Errorf("%w: list windows: %v", ErrMultiplexer, err)
	}

	live := make(map[string]bool, len(wins))
	for _, w := range wins {
		live[w.Name] = true
	}

	for id := range m.sessions {
		if !live[id] {
			delete(m.sessions, id)
			m.closed[id] = struct{}{}
			m.log.Info("session window vanished", slog.String("session_id", id))
		}
	}

	for _, w := range wins {
		if _, tracked := m.sessions[w.Name]; tracked {
			continue
		}
		if _, wasClosed := m.closed[w.Name]; wasClosed {
			continue
		}
		if !windowNameRe.MatchString(w.Name) {
			continue
		}
		user, host := splitWindowName(w.Name)
		// The window's activity time is the closest honest stand-in for an
		// age this process never observed; zero renders as unknown.
		m.sessions[w.Name] = &entry{sess: Session{
			ID:        w.Name,
			Conn:      sshcfg.Params{Alias: host, Hostname: host, User: user},
			CreatedAt: w.Activity,
		}}
		m.log.Info("adopted existing session window", slog.String("session_id", w.Name))
	}
	return nil
}

// splitWindowName recovers [user@]host from a window name by stripping the
// random suffix.
func splitWindowName(name string) (user, host string) {
	target := name
	if idx := strings.LastIndexByte(name, '-'); idx > 0 {
		target = name[:idx]
	}
	if u, h, ok := strings.Cut(target, "@"); ok {
		return u, h
	}
	return "", target
}

func (m *Manager) capture(id string, lines int) (screen.Snapshot, error) {
	if lines <= 0 {
		lines = m.opts.CaptureLines
	}
	raw, err := m.ctl.CapturePane(m.opts.Container, id, lines)
	if err != nil {
		return screen.Snapshot{}, fmt.Errorf("%w: capture pane: %v", ErrMultiplexer, err)
	}
	return screen.Sanitize(raw), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
