package tmux

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Exec is the Controller backed by the local tmux binary.
type Exec struct {
	bin string
}

// NewExec locates the tmux binary.
func NewExec() (*Exec, error) {
	bin, err := exec.LookPath("tmux")
	if err != nil {
		return nil, fmt.Errorf("tmux not found: %w", err)
	}
	return &Exec{bin: bin}, nil
}

func (e *Exec) run(args ...string) (string, error) {
	cmd := exec.Command(e.bin, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("tmux %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return string(out), nil
}

func (e *Exec) HasSession(session string) bool {
	_, err := e.run("has-session", "-t", exact(session))
	return err == nil
}

func (e *Exec) EnsureSession(session string) error {
	if e.HasSession(session) {
		return nil
	}
	_, err := e.run("new-session", "-d", "-s", session)
	return err
}

func (e *Exec) KillSession(session string) error {
	_, err := e.run("kill-session", "-t", exact(session))
	return err
}

func (e *Exec) NewWindow(session, window, command string) error {
	_, err := e.run("new-window", "-d", "-t", exact(session)+":", "-n", window, command)
	return err
}

func (e *Exec) KillWindow(session, window string) error {
	_, err := e.run("kill-window", "-t", target(session, window))
	return err
}

func (e *Exec) ListWindows(session string) ([]WindowInfo, error) {
	format := strings.Join([]string{"#{window_name}", "#{window_id}", "#{pane_dead}", "#{window_activity}"}, fieldSep)
	out, err := e.run("list-windows", "-t", exact(session), "-F", format)
	if err != nil {
		return nil, err
	}
	return parseWindowList(out), nil
}

// SendKeys sends text with -l so tmux does not interpret key names inside
// it, then submits with a separate Enter keystroke.
func (e *Exec) SendKeys(session, window, text string) error {
	if _, err := e.run("send-keys", "-t", target(session, window), "-l", text); err != nil {
		return err
	}
	_, err := e.run("send-keys", "-t", target(session, window), "Enter")
	return err
}

// CapturePane uses -J to re-join lines the pane wrapped, so long command
// echoes and base64 runs come back as the logical lines that were printed.
func (e *Exec) CapturePane(session, window string, lines int) (string, error) {
	return e.run("capture-pane", "-t", target(session, window), "-p", "-J", "-S", fmt.Sprintf("-%d", lines))
}

func (e *Exec) SetWindowOption(session, window, key, value string) error {
	_, err := e.run("set-option", "-w", "-t", target(session, window), key, value)
	return err
}

// Attach hands the controlling terminal to tmux attach, selecting the given
// window first. TMUX is filtered from the environment so attaching works
// from inside another tmux client. Returns when the user detaches.
func (e *Exec) Attach(session, window string) error {
	if window != "" {
		if _, err := e.run("select-window", "-t", target(session, window)); err != nil {
			return err
		}
	}
	cmd := exec.Command(e.bin, "attach-session", "-t", exact(session))
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = filterTMUX(os.Environ())
	return cmd.Run()
}

// exact prefixes a target with = so tmux matches the name exactly instead of
// by prefix.
func exact(session string) string {
	return "=" + session
}

func target(session, window string) string {
	return exact(session) + ":" + window
}

// filterTMUX removes the TMUX env var so nested attach is allowed.
func filterTMUX(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "TMUX=") {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
