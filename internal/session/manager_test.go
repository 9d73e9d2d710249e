package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/simon/sshmux/internal/policy"
	"github.com/simon/sshmux/internal/sshcfg"
	"github.com/simon/sshmux/internal/tmux"
)

// fakeMux is an in-memory tmux. Its windows hold pane content as lines, and
// a small command emulator answers the transfer protocol so round-trip
// tests run without a real shell.
type fakeMux struct {
	mu          sync.Mutex
	has         bool
	createCount int
	killCount   int
	windows     map[string]*fakeWindow
	sendLog     []string
	files       map[string][]byte
	mute        bool // disable the command emulator
	failWrites  bool // every write chunk fails, as if the disk filled
}

type fakeWindow struct {
	command  string
	options  map[string]string
	pane     []string
	activity time.Time
}

func newFakeMux() *fakeMux {
	return &fakeMux{files: make(map[string][]byte)}
}

func (f *fakeMux) HasSession(string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.has
}

func (f *fakeMux) EnsureSession(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.has {
		return nil
	}
	f.has = true
	f.createCount++
	// tmux always gives a fresh session one default shell window
	f.windows = map[string]*fakeWindow{
		"bash": {options: map[string]string{}, pane: []string{"jon@local:~$ "}, activity: time.Now()},
	}
	return nil
}

func (f *fakeMux) KillSession(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.has {
		return errors.New("no such session")
	}
	f.has = false
	f.killCount++
	f.windows = nil
	return nil
}

func (f *fakeMux) NewWindow(_, window, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.has {
		return errors.New("no such session")
	}
	f.windows[window] = &fakeWindow{
		command:  command,
		options:  map[string]string{},
		pane:     []string{"Last login: Mon", "jon@remote:~$ "},
		activity: time.Now(),
	}
	return nil
}

func (f *fakeMux) KillWindow(_, window string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[window]; !ok {
		return errors.New("no such window")
	}
	delete(f.windows, window)
	return nil
}

func (f *fakeMux) ListWindows(string) ([]tmux.WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.has {
		return nil, errors.New("no such session")
	}
	var wins []tmux.WindowInfo
	for name, w := range f.windows {
		wins = append(wins, tmux.WindowInfo{Name: name, Activity: w.activity})
	}
	return wins, nil
}

func (f *fakeMux) SendKeys(_, window, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[window]
	if !ok {
		return errors.New("no such window")
	}
	f.sendLog = append(f.sendLog, text)
	w.pane = append(w.pane, "jon@remote:~$ "+text)
	if !f.mute {
		f.emulate(w, text)
	}
	w.pane = append(w.pane, "jon@remote:~$ ")
	return nil
}

var (
	readCmdRe       = regexp.MustCompile(`^ echo (\S+); base64 < '(.*)'; echo (\S+)$`)
	writeCmdRe      = regexp.MustCompile(`^ printf %s '([^']*)' \| base64 -d (>>?) '(.*?)'( && echo (\S+))? \|\| echo (\S+)$`)
	emptyWriteCmdRe = regexp.MustCompile(`^ : (>>?) '(.*)' && echo (\S+) \|\| echo (\S+)$`)
)

// execEcho resolves a marker token the way the shell would: the adjacent
// empty quotes vanish when echo runs.
func execEcho(token string) string {
	return strings.ReplaceAll(token, "''", "")
}

// emulate answers the transfer protocol command lines.
func (f *fakeMux) emulate(w *fakeWindow, text string) {
	if m := readCmdRe.FindStringSubmatch(text); m != nil {
		start, path, end := execEcho(m[1]), m[2], execEcho(m[3])
		w.pane = append(w.pane, start)
		if data, ok := f.files[path]; ok {
			enc := base64.StdEncoding.EncodeToString(data)
			for len(enc) > 76 {
				w.pane = append(w.pane, enc[:76])
				enc = enc[76:]
			}
			if enc != "" {
				w.pane = append(w.pane, enc)
			}
		} else {
			w.pane = append(w.pane, fmt.Sprintf("bash: %s: No such file or directory", path))
		}
		w.pane = append(w.pane, end)
		return
	}
	if m := writeCmdRe.FindStringSubmatch(text); m != nil {
		chunk, redir, path, okMarker, failMarker := m[1], m[2], m[3], m[5], m[6]
		data, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil || f.failWrites {
			w.pane = append(w.pane, execEcho(failMarker))
			return
		}
		if redir == ">" {
			f.files[path] = data
		} else {
			f.files[path] = append(f.files[path], data...)
		}
		if okMarker != "" {
			w.pane = append(w.pane, execEcho(okMarker))
		}
		return
	}
	if m := emptyWriteCmdRe.FindStringSubmatch(text); m != nil {
		redir, path, okMarker := m[1], m[2], execEcho(m[3])
		if f.failWrites {
			w.pane = append(w.pane, execEcho(m[4]))
			return
		}
		if redir == ">" {
			f.files[path] = nil
		} else if _, ok := f.files[path]; !ok {
			f.files[path] = nil
		}
		w.pane = append(w.pane, okMarker)
	}
}

func (f *fakeMux) CapturePane(_, window string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[window]
	if !ok {
		return "", errors.New("no such window")
	}
	pane := w.pane
	if len(pane) > lines {
		pane = pane[len(pane)-lines:]
	}
	return strings.Join(pane, "\n"), nil
}

func (f *fakeMux) SetWindowOption(_, window, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[window]
	if !ok {
		return errors.New("no such window")
	}
	w.options[key] = value
	return nil
}

func testResolver() *sshcfg.Resolver {
	r := sshcfg.NewResolver(nil)
	r.Dump = func(_ context.Context, host string) (string, error) {
		return "hostname " + host + "\nuser jon\nport 22\n", nil
	}
	return r
}

func testManager(t *testing.T, f *fakeMux) *Manager {
	t.Helper()
	return NewManager(f, testResolver(), policy.MustValidator(), nil, Options{
		Container:       "sshmux-test",
		CaptureLines:    40,
		KillPlaceholder: true,
		Settle:          PollPolicy{Interval: time.Millisecond, Attempts: 2},
		Transfer:        PollPolicy{Interval: time.Millisecond, Attempts: 5},
	}, slog.New(slog.DiscardHandler))
}

func mustOpen(t *testing.T, m *Manager, host string) Session {
	t.Helper()
	sess, _, err := m.OpenSession(context.Background(), host, "", 0)
	if err != nil {
		t.Fatalf("OpenSession(%s): %v", host, err)
	}
	return sess
}

func TestOpenSessionCreatesWindowRunningSSH(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)

	sess, snap, err := m.OpenSession(context.Background(), "h1", "", 0)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if !strings.HasPrefix(sess.ID, "jon@h1-") {
		t.Errorf("id = %q, want jon@h1-XXXX", sess.ID)
	}
	if snap.Text == "" {
		t.Error("initial snapshot empty")
	}

	w := f.windows[sess.ID]
	if w == nil {
		t.Fatal("window not created")
	}
	if w.command != "ssh jon@h1" {
		t.Errorf("window command = %q", w.command)
	}
	if w.options["remain-on-exit"] != "on" {
		t.Errorf("remain-on-exit = %q", w.options["remain-on-exit"])
	}
	if _, ok := f.windows["bash"]; ok {
		t.Error("placeholder window survived")
	}
}

func TestUnknownSessionID(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	ctx := context.Background()

	if _, err := m.GetSnapshot(ctx, "nope-0000", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSnapshot err = %v", err)
	}
	if _, err := m.SendCommand(ctx, "nope-0000", "ls", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SendCommand err = %v", err)
	}
	if _, err := m.CloseSession(ctx, "nope-0000"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("CloseSession err = %v", err)
	}
	if _, err := m.ReadRemoteFile(ctx, "nope-0000", "/etc/motd"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ReadRemoteFile err = %v", err)
	}
	if err := m.WriteRemoteFile(ctx, "nope-0000", "/tmp/x", []byte("hi"), false); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("WriteRemoteFile err = %v", err)
	}
}

func TestCloseSessionNotIdempotent(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	ctx := context.Background()
	sess := mustOpen(t, m, "h1")

	if _, err := m.CloseSession(ctx, sess.ID); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if _, err := m.CloseSession(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second close err = %v, want ErrSessionNotFound", err)
	}
}

func TestContainerSingletonUnderConcurrentOpens(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mustOpenConcurrent(t, m, "h1")
		}()
	}
	wg.Wait()

	if f.createCount != 1 {
		t.Errorf("container created %d times, want 1", f.createCount)
	}
	sessions, err := m.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 10 {
		t.Errorf("got %d sessions, want 10", len(sessions))
	}
}

func mustOpenConcurrent(t *testing.T, m *Manager, host string) {
	if _, _, err := m.OpenSession(context.Background(), host, "", 0); err != nil {
		t.Errorf("OpenSession: %v", err)
	}
}

func TestLastCloseTearsDownContainer(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	ctx := context.Background()

	a := mustOpen(t, m, "h1")
	b := mustOpen(t, m, "h2")

	if _, err := m.CloseSession(ctx, a.ID); err != nil {
		t.Fatalf("close a: %v", err)
	}
	if !f.HasSession("") {
		t.Fatal("container torn down while a session remained")
	}
	if _, err := m.CloseSession(ctx, b.ID); err != nil {
		t.Fatalf("close b: %v", err)
	}
	if f.HasSession("") {
		t.Fatal("container still exists after last close")
	}

	// A later open recreates it from scratch.
	mustOpen(t, m, "h3")
	if !f.HasSession("") {
		t.Fatal("container not recreated")
	}
	if f.createCount != 2 {
		t.Errorf("createCount = %d, want 2", f.createCount)
	}
}

func TestListAdoptsWindowsFromPriorInstance(t *testing.T) {
	f := newFakeMux()

	// A prior process left windows behind; this process starts empty.
	first := testManager(t, f)
	sess := mustOpen(t, first, "h1")

	second := testManager(t, f)
	sessions, err := second.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != sess.ID {
		t.Fatalf("sessions = %+v, want adopted %s", sessions, sess.ID)
	}
	if sessions[0].Conn.Hostname != "h1" || sessions[0].Conn.User != "jon" {
		t.Errorf("adopted conn = %+v", sessions[0].Conn)
	}
	if sessions[0].CreatedAt.IsZero() {
		t.Error("adopted session lost the window's activity time")
	}
	if time.Since(sessions[0].CreatedAt) > time.Minute {
		t.Errorf("adopted CreatedAt = %v, want the window's activity time", sessions[0].CreatedAt)
	}

	// The adopted session is fully usable.
	if _, err := second.GetSnapshot(context.Background(), sess.ID, 0); err != nil {
		t.Errorf("GetSnapshot on adopted session: %v", err)
	}
}

func TestVanishedWindowPrunedAndNotFound(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	ctx := context.Background()
	sess := mustOpen(t, m, "h1")

	// Window disappears behind the manager's back.
	f.mu.Lock()
	delete(f.windows, sess.ID)
	f.mu.Unlock()

	if _, err := m.GetSnapshot(ctx, sess.ID, 0); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	sessions, err := m.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("pruned session still listed: %+v", sessions)
	}
}

func TestSendCommandBlockedNeverReachesTerminal(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	ctx := context.Background()
	sess := mustOpen(t, m, "h1")

	_, err := m.SendCommand(ctx, sess.ID, "rm -rf /", 0)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	for _, sent := range f.sendLog {
		if strings.Contains(sent, "rm -rf /") {
			t.Fatal("blocked command reached the terminal")
		}
	}
}

func TestSendCommandWarnStillSent(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	ctx := context.Background()
	sess := mustOpen(t, m, "h1")

	res, err := m.SendCommand(ctx, sess.ID, "chmod 777 /tmp/x", 0)
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if res.Verdict.Action != policy.Warn {
		t.Errorf("verdict = %v, want Warn", res.Verdict.Action)
	}
	found := false
	for _, sent := range f.sendLog {
		if sent == "chmod 777 /tmp/x" {
			found = true
		}
	}
	if !found {
		t.Error("warned command did not reach the terminal")
	}
}

func TestSendCommandCapturesSettledScreen(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	ctx := context.Background()
	sess := mustOpen(t, m, "h1")

	res, err := m.SendCommand(ctx, sess.ID, "ls -la", 0)
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if !strings.Contains(res.Snapshot.Text, "ls -la") {
		t.Errorf("snapshot missing echoed command: %q", res.Snapshot.Text)
	}
	if res.Snapshot.Hint == "" {
		t.Error("expected a prompt hint on the settled screen")
	}
}

func TestCloseReturnsFinalSnapshot(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	sess := mustOpen(t, m, "h1")

	final, err := m.CloseSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if final.Text == "" {
		t.Error("final snapshot empty")
	}
}

func TestIDsNeverReused(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		sess := mustOpen(t, m, "h1")
		if seen[sess.ID] {
			t.Fatalf("id %q reused", sess.ID)
		}
		seen[sess.ID] = true
		if _, err := m.CloseSession(ctx, sess.ID); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
}
