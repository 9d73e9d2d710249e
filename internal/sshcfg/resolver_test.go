package sshcfg

import (
	"context"
	"errors"
	"testing"
)

func fakeDump(out string, err error) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) {
		return out, err
	}
}

func TestResolveFromConfigDump(t *testing.T) {
	r := NewResolver(nil)
	r.Dump = fakeDump(`user jon
hostname devnull-vm.internal
port 2222
identityfile /home/jon/.ssh/devnull
identityfile /home/jon/.ssh/id_rsa
`, nil)

	p, err := r.Resolve(context.Background(), "devnull", "", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Hostname != "devnull-vm.internal" {
		t.Errorf("hostname = %q", p.Hostname)
	}
	if p.User != "jon" {
		t.Errorf("user = %q", p.User)
	}
	if p.Port != 2222 {
		t.Errorf("port = %d", p.Port)
	}
	if p.IdentityFile != "/home/jon/.ssh/devnull" {
		t.Errorf("identityfile = %q, want first entry", p.IdentityFile)
	}
	if p.Alias != "devnull" {
		t.Errorf("alias = %q", p.Alias)
	}
}

func TestResolveOverrides(t *testing.T) {
	r := NewResolver(nil)
	r.Dump = fakeDump("user jon\nhostname h1\nport 22\n", nil)

	p, err := r.Resolve(context.Background(), "h1", "root", 2200)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.User != "root" {
		t.Errorf("user = %q, want override", p.User)
	}
	if p.Port != 2200 {
		t.Errorf("port = %d, want override", p.Port)
	}
}

func TestResolveDumpFailureFallsBackToBareHost(t *testing.T) {
	r := NewResolver(nil)
	r.Dump = fakeDump("", errors.New("exit status 255"))

	p, err := r.Resolve(context.Background(), "203.0.113.9", "admin", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Hostname != "203.0.113.9" || p.User != "admin" {
		t.Errorf("got %+v, want bare host fallback", p)
	}
}

func TestResolveEmptyHost(t *testing.T) {
	r := NewResolver(nil)
	r.Dump = fakeDump("", nil)

	_, err := r.Resolve(context.Background(), "  ", "", 0)
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("err = %v, want ErrResolution", err)
	}
}

func TestCommandLine(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name:   "defaults omitted",
			params: Params{Hostname: "h1", User: "jon", Port: 22, IdentityFile: "/home/jon/.ssh/id_rsa"},
			want:   "ssh jon@h1",
		},
		{
			name:   "custom port and key",
			params: Params{Hostname: "h1", User: "jon", Port: 2222, IdentityFile: "/home/jon/.ssh/devnull"},
			want:   "ssh -p 2222 -i /home/jon/.ssh/devnull jon@h1",
		},
		{
			name:   "no user",
			params: Params{Hostname: "h1"},
			want:   "ssh h1",
		},
		{
			name:   "extra options in order",
			params: Params{Hostname: "h1", Options: []string{"ServerAliveInterval=30", "ConnectTimeout=5"}},
			want:   "ssh -o ServerAliveInterval=30 -o ConnectTimeout=5 h1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.CommandLine(); got != tt.want {
				t.Errorf("CommandLine() = %q, want %q", got, tt.want)
			}
		})
	}
}
