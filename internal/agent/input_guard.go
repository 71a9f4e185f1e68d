package agent

import (
	"regexp"
	"strings"
)

// InputGuard scans user messages for known prompt injection patterns before
// they reach the conversation. Matches are logged, not blocked: a personal
// agent's owner may legitimately paste text that trips a pattern.
type InputGuard struct {
	patterns []guardPattern
}

type guardPattern struct {
	name    string
	pattern *regexp.Regexp
}

func NewInputGuard() *InputGuard {
	return &InputGuard{patterns: defaultGuardPatterns()}
}

// Scan returns the names of matched patterns; empty means clean.
func (g *InputGuard) Scan(message string) []string {
	if message == "" {
		return nil
	}
	var matches []string
	for _, gp := range g.patterns {
		if gp.pattern.MatchString(message) {
			matches = append(matches, gp.name)
		}
	}
	return matches
}

// defaultGuardPatterns covers the common injection shapes while keeping
// false positives on ordinary messages low.
func defaultGuardPatterns() []guardPattern {
	return []guardPattern{
		{
			name:    "ignore_instructions",
			pattern: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|rules?|prompts?|directives?|guidelines?)`),
		},
		{
			name:    "role_override",
			pattern: regexp.MustCompile(`(?i)(you are now|from now on you are|pretend you are|act as if you are|imagine you are)\s+`),
		},
		{
			name:    "system_tags",
			pattern: regexp.MustCompile(`(?i)</?system>|\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>system`),
		},
		{
			name:    "instruction_injection",
			pattern: regexp.MustCompile(`(?i)(new instructions?:|override:|system prompt:|<\|system\|>)`),
		},
		{
			name:    "null_bytes",
			pattern: regexp.MustCompile(`\x00`),
		},
		{
			name:    "delimiter_escape",
			pattern: regexp.MustCompile(`(?i)(end of system|begin user input|</?(instructions?|rules|prompt|context)>)`),
		},
	}
}

// ContainsNullBytes is a fast check without regex overhead.
func ContainsNullBytes(s string) bool {
	return strings.ContainsRune(s, 0)
}
