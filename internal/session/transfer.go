package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/simon/sshmux/internal/screen"
)

// File transfer rides the same interactive text channel as commands: the
// content is base64 between unique high-entropy markers, pulled out of
// polled snapshots. Sent command lines start with a space so shells with
// HISTCONTROL=ignorespace keep them out of the human observer's history.

// transferCaptureLines is the snapshot depth used while polling for
// markers. It bounds the largest transferable file to what fits in the tmux
// scrollback window it covers.
const transferCaptureLines = 2000

// writeChunkSize is the per-command slice of base64 text. A multiple of 4 so
// every chunk decodes independently and the decoded pieces concatenate to
// the original bytes.
const writeChunkSize = 3072

func newMarker(kind string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("__SSHMUX_%s_%s__", kind, token)
}

// sentMarker renders a marker for embedding in a command line. The empty
// quotes in the middle keep the echoed command text from ever containing the
// exact marker, even when the pane wraps the long command across rows; only
// real execution of the echo prints the joined form.
func sentMarker(m string) string {
	mid := len(m) / 2
	return m[:mid] + "''" + m[mid:]
}

// ReadRemoteFile reads a remote file through the session's terminal.
// The remote side emits start marker, base64 of the file, end marker; we
// poll snapshots until both markers are visible, then decode.
func (m *Manager) ReadRemoteFile(ctx context.Context, id, remotePath string) ([]byte, error) {
	ent, err := m.checkout(id)
	if err != nil {
		return nil, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	start := newMarker("B")
	end := newMarker("E")
	cmd := fmt.Sprintf(" echo %s; base64 < %s; echo %s",
		sentMarker(start), shellQuote(remotePath), sentMarker(end))

	if err := m.ctl.SendKeys(m.opts.Container, id, cmd); err != nil {
		return nil, fmt.Errorf("%w: send keys: %v", ErrMultiplexer, err)
	}

	for attempt := 0; attempt < m.opts.Transfer.Attempts; attempt++ {
		if err := sleepCtx(ctx, m.opts.Transfer.Interval); err != nil {
			return nil, err
		}
		raw, err := m.ctl.CapturePane(m.opts.Container, id, transferCaptureLines)
		if err != nil {
			return nil, fmt.Errorf("%w: capture pane: %v", ErrMultiplexer, err)
		}
		body, found := extractBetweenMarkers(screen.Strip(raw), start, end)
		if !found {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			// The shell printed something that is not base64 between the
			// markers, most likely an error from the remote command.
			return nil, fmt.Errorf("remote read of %s failed: %q", remotePath, firstLine(body))
		}
		m.log.Info("remote file read",
			slog.String("session_id", id),
			slog.String("path", remotePath),
			slog.Int("bytes", len(data)))
		return data, nil
	}
	return nil, fmt.Errorf("%w: reading %s", ErrTransferTimeout, remotePath)
}

// WriteRemoteFile writes content to a remote path through the session's
// terminal. Content is chunked so no single command line grows unwieldy;
// the first chunk honors append, the rest always append. Every chunk carries
// a failure marker so a decode or redirection error anywhere in the sequence
// is caught, and the final chunk adds a success marker printed only when its
// decode succeeded.
func (m *Manager) WriteRemoteFile(ctx context.Context, id, remotePath string, content []byte, appendMode bool) error {
	ent, err := m.checkout(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(content)
	chunks := chunkString(encoded, writeChunkSize)
	ok := newMarker("OK")
	fail := newMarker("ERR")
	quotedPath := shellQuote(remotePath)

	if len(chunks) == 0 {
		// Empty content: truncate (or no-op append) and confirm.
		redir := ">"
		if appendMode {
			redir = ">>"
		}
		cmd := fmt.Sprintf(" : %s %s && echo %s || echo %s",
			redir, quotedPath, sentMarker(ok), sentMarker(fail))
		if err := m.ctl.SendKeys(m.opts.Container, id, cmd); err != nil {
			return fmt.Errorf("%w: send keys: %v", ErrMultiplexer, err)
		}
		return m.awaitMarker(ctx, id, ok, fail, remotePath)
	}

	for i, chunk := range chunks {
		redir := ">>"
		if i == 0 && !appendMode {
			redir = ">"
		}
		cmd := fmt.Sprintf(" printf %%s %s | base64 -d %s %s", shellQuote(chunk), redir, quotedPath)
		if i == len(chunks)-1 {
			cmd += fmt.Sprintf(" && echo %s", sentMarker(ok))
		}
		cmd += fmt.Sprintf(" || echo %s", sentMarker(fail))
		if err := m.ctl.SendKeys(m.opts.Container, id, cmd); err != nil {
			return fmt.Errorf("%w: send keys: %v", ErrMultiplexer, err)
		}
	}

	if err := m.awaitMarker(ctx, id, ok, fail, remotePath); err != nil {
		return err
	}
	m.log.Info("remote file written",
		slog.String("session_id", id),
		slog.String("path", remotePath),
		slog.Int("bytes", len(content)))
	return nil
}

// awaitMarker polls snapshots until the success or failure marker shows up
// on its own line. Failure wins when both are visible: an intermediate chunk
// can fail while the final chunk still prints the success marker.
func (m *Manager) awaitMarker(ctx context.Context, id, ok, fail, remotePath string) error {
	for attempt := 0; attempt < m.opts.Transfer.Attempts; attempt++ {
		if err := sleepCtx(ctx, m.opts.Transfer.Interval); err != nil {
			return err
		}
		raw, err := m.ctl.CapturePane(m.opts.Container, id, transferCaptureLines)
		if err != nil {
			return fmt.Errorf("%w: capture pane: %v", ErrMultiplexer, err)
		}
		text := screen.Strip(raw)
		if hasMarkerLine(text, fail) {
			return fmt.Errorf("remote write of %s failed", remotePath)
		}
		if hasMarkerLine(text, ok) {
			return nil
		}
	}
	return fmt.Errorf("%w: writing %s", ErrTransferTimeout, remotePath)
}

// extractBetweenMarkers finds the last line that is exactly end, the last
// line before it that is exactly start, and returns the base64 text between
// them with all whitespace removed. The echoed command line never matches:
// it carries only the split forms of the markers.
func extractBetweenMarkers(text, start, end string) (string, bool) {
	lines := strings.Split(text, "\n")

	endIdx := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == end {
			endIdx = i
			break
		}
	}
	if endIdx < 0 {
		return "", false
	}

	startIdx := -1
	for i := endIdx - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == start {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return "", false
	}

	var b strings.Builder
	for _, line := range lines[startIdx+1 : endIdx] {
		b.WriteString(strings.TrimSpace(line))
	}
	return b.String(), true
}

func hasMarkerLine(text, marker string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == marker {
			return true
		}
	}
	return false
}

func chunkString(s string, size int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	if len(s) > 120 {
		return s[:120]
	}
	return s
}

// shellQuote wraps a string in single quotes, escaping any single quotes
// inside.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\"'\"'") + "'"
}
