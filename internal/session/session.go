// Package session defines the shared data contract between the wrapper
// and the broker: session identity, prompt patterns, and the Turn value
// type. Both sides use these types; neither owns the other's copy.
package session

import (
	"regexp"

	"github.com/google/uuid"
)

// ID is an opaque, globally unique session identifier. It carries no
// ordering information — callers must never infer recency or identity
// from anything but equality.
type ID string

// NewID mints a fresh session identifier. Backed by a version-4 UUID,
// which satisfies the uniqueness contract without requiring any shared
// counter between wrapper processes.
func NewID() ID {
	return ID(uuid.New().String())
}

// Pattern is an immutable, per-session prompt-matching regular expression.
// Patterns containing a literal newline are rejected by CompilePattern
// because the detector only ever tests a single line (see turn.Detector).
type Pattern struct {
	Source   string
	Preset   string
	compiled *regexp.Regexp
}

// CompilePattern validates and compiles a prompt pattern. preset is
// informational only (e.g. "claude", "aider", "generic", "custom") and is
// reported to the broker for diagnostics; it does not affect matching.
func CompilePattern(source, preset string) (Pattern, error) {
	for _, r := range source {
		if r == '\n' {
			return Pattern{}, ErrMultilinePattern
		}
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Source: source, Preset: preset, compiled: re}, nil
}

// Match reports whether the pattern matches anywhere in the given
// (already ANSI-stripped) line.
func (p Pattern) Match(line []byte) bool {
	if p.compiled == nil {
		return false
	}
	return p.compiled.Match(line)
}

// Presets holds the built-in prompt patterns for common agent CLIs.
// Exact regex bodies are an open question in the contract ("deferred to
// empirical validation"); these are conservative choices matching a
// trailing input affordance rather than any particular banner text, so
// that unrelated output lines don't false-positive as prompts.
var Presets = map[string]string{
	"claude":  `^\s*>\s*$`,
	"aider":   `^\s*>\s*$`,
	"generic": `^\s*[$#>]\s*$`,
}

// ErrMultilinePattern is returned by CompilePattern when the supplied
// pattern source contains a literal newline.
var ErrMultilinePattern = errMultilinePattern{}

type errMultilinePattern struct{}

func (errMultilinePattern) Error() string {
	return "prompt pattern must not contain a literal newline"
}

// Descriptor is the informational, non-authoritative summary of a
// session's prompt pattern as reported to the broker on register. The
// broker never evaluates it; it is stored on the session's table entry
// and is not included in any response, list_sessions included.
type Descriptor struct {
	Source string
	Preset string
}

func (p Pattern) Descriptor() Descriptor {
	return Descriptor{Source: p.Source, Preset: p.Preset}
}
