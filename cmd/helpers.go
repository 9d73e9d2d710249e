package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/simon/sshmux/internal/config"
	"github.com/simon/sshmux/internal/policy"
	"github.com/simon/sshmux/internal/session"
	"github.com/simon/sshmux/internal/sshcfg"
	"github.com/simon/sshmux/internal/state"
	"github.com/simon/sshmux/internal/tmux"
)

// app bundles everything a command needs. Build one per invocation and
// close it before exiting.
type app struct {
	cfg   *config.Config
	mux   *tmux.Exec
	mgr   *session.Manager
	store *state.Store
	log   *slog.Logger
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// newApp wires the manager from config. Logs go to stderr so stdout stays
// clean for command output (and for the MCP transport in serve).
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	mux, err := tmux.NewExec()
	if err != nil {
		return nil, err
	}

	validator, err := policy.NewValidator(cfg.BlockPatterns, cfg.WarnPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid policy pattern in config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var recorder session.Recorder
	var store *state.Store
	if cfg.HistoryOn() {
		store, err = state.Open()
		if err != nil {
			log.Warn("history disabled", "error", err)
			store = nil
		} else {
			recorder = store
		}
	}

	mgr := session.NewManager(mux, sshcfg.NewResolver(cfg.SSHOptions), validator, recorder, session.Options{
		Container:       cfg.Container,
		CaptureLines:    cfg.CaptureLines,
		KillPlaceholder: cfg.KillPlaceholderOn(),
		Settle: session.PollPolicy{
			Interval: cfg.Settle.Interval(),
			Attempts: cfg.Settle.Attempts,
		},
		Transfer: session.PollPolicy{
			Interval: cfg.Transfer.Interval(),
			Attempts: cfg.Transfer.Attempts,
		},
	}, log)

	return &app{cfg: cfg, mux: mux, mgr: mgr, store: store, log: log}, nil
}
