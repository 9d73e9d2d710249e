package sshcfg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrResolution indicates that no usable connection target could be derived
// from the given host and overrides.
var ErrResolution = errors.New("cannot resolve connection")

// Params holds resolved SSH connection parameters for one host.
// Immutable once resolved; recomputed on every session open.
type Params struct {
	Alias        string // host as given by the caller
	Hostname     string
	User         string
	Port         int
	IdentityFile string
	Options      []string // extra -o options, in order
}

// Target returns the [user@]hostname form used on the ssh command line.
func (p Params) Target() string {
	if p.User != "" {
		return p.User + "@" + p.Hostname
	}
	return p.Hostname
}

// CommandArgs builds the ssh invocation for this connection. Interactive
// prompting stays enabled so password and host-key prompts land on screen.
// Defaults (port 22, the stock identity) are omitted to keep the command
// readable for a human attached to the window.
func (p Params) CommandArgs() []string {
	args := []string{"ssh"}
	if p.Port != 0 && p.Port != 22 {
		args = append(args, "-p", strconv.Itoa(p.Port))
	}
	if p.IdentityFile != "" && !isDefaultIdentity(p.IdentityFile) {
		args = append(args, "-i", p.IdentityFile)
	}
	for _, opt := range p.Options {
		args = append(args, "-o", opt)
	}
	args = append(args, p.Target())
	return args
}

// CommandLine renders CommandArgs as a single shell command, suitable as a
// tmux window startup command.
func (p Params) CommandLine() string {
	args := p.CommandArgs()
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, maybeQuote(a))
	}
	return strings.Join(quoted, " ")
}

func isDefaultIdentity(path string) bool {
	for _, def := range []string{"id_rsa", "id_ed25519", "id_ecdsa", "id_dsa"} {
		if strings.HasSuffix(path, "/.ssh/"+def) || path == "~/.ssh/"+def {
			return true
		}
	}
	return false
}

func maybeQuote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t'\"\\$`") {
		return "'" + strings.ReplaceAll(s, "'", "'\"'\"'") + "'"
	}
	return s
}

// Resolver resolves host aliases through the installed ssh client's own
// config machinery (ssh -G), so Include, Match and wildcard Host blocks
// behave exactly as they would for the user running ssh directly.
type Resolver struct {
	// ExtraOptions are appended to every resolved Params, in order.
	ExtraOptions []string

	// Dump runs the ssh config dump; swapped in tests to avoid invoking ssh.
	Dump func(ctx context.Context, host string) (string, error)
}

func NewResolver(extraOptions []string) *Resolver {
	return &Resolver{
		ExtraOptions: extraOptions,
		Dump:         runSSHDump,
	}
}

func runSSHDump(ctx context.Context, host string) (string, error) {
	sshBin, err := exec.LookPath("ssh")
	if err != nil {
		return "", fmt.Errorf("ssh not found: %w", err)
	}
	out, err := exec.CommandContext(ctx, sshBin, "-G", host).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Resolve derives connection parameters for host. Explicit username/port
// override whatever the ssh config resolves to. A failed config dump is not
// fatal as long as a bare hostname remains usable.
func (r *Resolver) Resolve(ctx context.Context, host, username string, port int) (Params, error) {
	if strings.TrimSpace(host) == "" {
		return Params{}, fmt.Errorf("%w: empty host", ErrResolution)
	}

	p := Params{Alias: host, Hostname: host, Options: r.ExtraOptions}

	out, err := r.Dump(ctx, host)
	if err == nil {
		applyDump(&p, out)
	}

	if username != "" {
		p.User = username
	}
	if port != 0 {
		p.Port = port
	}
	if p.Hostname == "" {
		return Params{}, fmt.Errorf("%w: no hostname for %q", ErrResolution, host)
	}
	return p, nil
}

// applyDump parses `ssh -G` output: one lowercase keyword and its value per
// line. Only the first identityfile entry is kept.
func applyDump(p *Params, out string) {
	for _, line := range strings.Split(out, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok || val == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "hostname":
			p.Hostname = val
		case "user":
			p.User = val
		case "port":
			if n, err := strconv.Atoi(val); err == nil {
				p.Port = n
			}
		case "identityfile":
			if p.IdentityFile == "" {
				p.IdentityFile = val
			}
		}
	}
}
