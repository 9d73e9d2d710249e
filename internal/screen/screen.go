// Package screen turns raw tmux pane captures into plain text an agent can
// read, plus advisory hints about what the terminal appears to be doing.
package screen

import (
	"regexp"
	"strings"
)

// Snapshot is one captured screen. Raw is kept verbatim; Text is the
// sanitized rendering; Hint, when set, is an advisory annotation and never
// feeds back into Raw or Text.
type Snapshot struct {
	Raw  string
	Text string
	Hint string
}

// Annotated returns the sanitized text with the hint appended, the form
// handed to callers of the tool surface.
func (s Snapshot) Annotated() string {
	if s.Hint == "" {
		return s.Text
	}
	return s.Text + "\n\n" + s.Hint
}

// Advisory hints attached to snapshots.
const (
	HintPrompt = "[INFO: A shell prompt was detected at the end of the screen. The command has likely finished.]"
	HintInput  = "[INFO: The session appears to be waiting for interactive input (e.g., a password or confirmation).]"
)

var (
	// CSI: ESC [ params intermediates final
	csiRe = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)
	// OSC terminated by BEL or ST
	oscBelRe = regexp.MustCompile(`\x1b\][^\x07]*\x07`)
	oscStRe  = regexp.MustCompile(`\x1b\][^\x1b]*\x1b\\`)
	// DCS / SOS / PM / APC terminated by ST
	dcsRe = regexp.MustCompile(`\x1b[PX^_][^\x1b]*\x1b\\`)
	// Truncated CSI/OSC at the end of the capture buffer
	truncRe = regexp.MustCompile(`\x1b(\[[0-?]*[ -/]*|\][^\x07\x1b]*)$`)
	// Leftover single control characters (keeps \n and \t)
	ctrlRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	// Terminal integration noise such as fish/iTerm <N> markers
	noiseRe = regexp.MustCompile(`<\d+>`)

	promptRe = regexp.MustCompile(`[$#>%]\s*$`)
	inputRe  = regexp.MustCompile(`(?i)\[y/n\]|\(y/n\)|password:|password for|passphrase`)
)

// Strip removes terminal escape sequences and stray control characters while
// preserving visible characters and line breaks. Partial escape sequences at
// the buffer edge are dropped rather than rendered.
func Strip(raw string) string {
	text := raw
	text = oscBelRe.ReplaceAllString(text, "")
	text = oscStRe.ReplaceAllString(text, "")
	text = dcsRe.ReplaceAllString(text, "")
	text = csiRe.ReplaceAllString(text, "")
	text = truncRe.ReplaceAllString(text, "")
	text = noiseRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r", "")
	text = ctrlRe.ReplaceAllString(text, "")
	return text
}

// Sanitize strips raw and scans the final non-blank line for a prompt-like
// terminator or interactive-input vocabulary.
func Sanitize(raw string) Snapshot {
	text := Strip(raw)
	return Snapshot{Raw: raw, Text: text, Hint: detectHint(text)}
}

func detectHint(text string) string {
	last := lastNonBlankLine(text)
	if last == "" {
		return ""
	}
	if inputRe.MatchString(last) {
		return HintInput
	}
	if promptRe.MatchString(last) {
		return HintPrompt
	}
	return ""
}

func lastNonBlankLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}
