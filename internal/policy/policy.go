package policy

import (
	"fmt"
	"regexp"
)

// Action is the verdict class for a validated command.
type Action int

const (
	Allow Action = iota
	Warn         // annotate but still send
	Block        // never reaches the terminal
)

func (a Action) String() string {
	switch a {
	case Warn:
		return "warn"
	case Block:
		return "block"
	default:
		return "allow"
	}
}

// Verdict is the result of validating a single command line.
type Verdict struct {
	Action Action
	Reason string
}

type rule struct {
	action  Action
	pattern *regexp.Regexp
	reason  string
}

// Validator is a stateless, ordered pattern-matcher over command text.
// The first matching rule wins; commands matching nothing are allowed.
type Validator struct {
	rules []rule
}

// Block rules come first so a command matching both a block and a warn
// pattern is blocked. Patterns are matched case-insensitively where the
// underlying tool name is case-insensitive in practice.
var defaultRules = []rule{
	// Recursive force-delete of root-adjacent paths. /home and /tmp stay
	// usable; everything else at the root is off limits.
	{Block, regexp.MustCompile(`(?i)\brm\s+(?:-[a-z]+\s+)*-(?:[a-z]*r[a-z]*f|[a-z]*f[a-z]*r)[a-z]*\s+(?:-[a-z]+\s+)*/(?:\*|bin|boot|dev|etc|lib\w*|opt|proc|root|sbin|srv|sys|usr|var)?(?:\s|$)`),
		"recursive force-delete of a root-level path"},
	// Disk overwrite.
	{Block, regexp.MustCompile(`(?i)\bdd\s+[^|;]*\bof=/dev/`),
		"dd writing to a device file"},
	{Block, regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
		"filesystem creation on a live host"},
	// Classic fork bomb.
	{Block, regexp.MustCompile(`:\(\)\s*\{.*\|.*\}\s*;\s*:`),
		"fork bomb"},
	// Piping downloaded content straight into an interpreter.
	{Block, regexp.MustCompile(`(?i)\b(?:curl|wget)\b[^|;]*\|\s*(?:sudo\s+)?(?:ba|z|da|k)?sh\b`),
		"piping a download into a shell"},
	// Background processes outlive the observable screen and cannot be
	// supervised through snapshots.
	{Block, regexp.MustCompile(`&\s*$`),
		"trailing & backgrounds the process"},
	{Block, regexp.MustCompile(`(?i)(?:^|[;&|]\s*)(?:\w+=\S+\s+)*(?:sudo\s+)?(?:nohup|disown)\b`),
		"background process idiom"},
	// Nested interactive multiplexers wedge the PTY this channel runs on.
	{Block, regexp.MustCompile(`(?i)(?:^|[;&|]\s*)(?:\w+=\S+\s+)*(?:sudo\s+)?tmux(?:\s+(?:attach(?:-session)?|a|new(?:-session)?|n)\b|\s*(?:$|[;&|]))`),
		"interactive tmux invocation inside the session"},
	{Block, regexp.MustCompile(`(?i)(?:^|[;&|]\s*)(?:\w+=\S+\s+)*(?:sudo\s+)?screen(?:\s+-(?:r|x|d)\S*\b.*)?\s*(?:$|[;&|])`),
		"interactive screen invocation inside the session"},

	{Warn, regexp.MustCompile(`(?i)\bchmod\s+(?:-[a-z]+\s+)*777\b`),
		"world-writable permissions"},
	{Warn, regexp.MustCompile(`(?i)\bchown\s+(?:-[a-z]+\s+)*-[a-z]*R[a-z]*\b[^|;]*\s/(?:etc|usr|var|bin|lib\w*)\b`),
		"recursive chown of a system path"},
}

// NewValidator returns a validator with the built-in rule set plus any
// user-supplied extra patterns, block rules first. Invalid patterns are
// rejected up front.
func NewValidator(extraBlock, extraWarn []string) (*Validator, error) {
	rules := make([]rule, 0, len(defaultRules)+len(extraBlock)+len(extraWarn))
	for _, p := range extraBlock {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid block pattern %q: %w", p, err)
		}
		rules = append(rules, rule{Block, re, fmt.Sprintf("matched policy pattern %q", p)})
	}
	rules = append(rules, defaultRules...)
	for _, p := range extraWarn {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid warn pattern %q: %w", p, err)
		}
		rules = append(rules, rule{Warn, re, fmt.Sprintf("matched policy pattern %q", p)})
	}
	return &Validator{rules: rules}, nil
}

// MustValidator is NewValidator with the default rules only.
func MustValidator() *Validator {
	v, err := NewValidator(nil, nil)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate classifies command. It never executes anything and never mutates
// external state.
func (v *Validator) Validate(command string) Verdict {
	for _, r := range v.rules {
		if r.pattern.MatchString(command) {
			return Verdict{Action: r.action, Reason: r.reason}
		}
	}
	return Verdict{Action: Allow}
}
