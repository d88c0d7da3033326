// Package shellpolicy decides whether a shell command may run.
//
// The policy is default-deny: only a small read-only subset is allowed.
// Checks are high-signal heuristics over the raw command string rather
// than a full shell parser, so decisions stay deterministic and testable.
package shellpolicy

import (
	"fmt"
	"regexp"
	"strings"
)

// maxCommandLen bounds accepted commands.
const maxCommandLen = 8000

// Decision is the outcome of evaluating one command.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type deniedToken struct {
	pattern *regexp.Regexp
	why     string
}

var deniedTokens = []deniedToken{
	{regexp.MustCompile(`(?i)\b(rm|rmdir|unlink|shred)\b`), "delete files"},
	{regexp.MustCompile(`(?i)\bmkfs(\.[a-z0-9]+)?\b`), "format disk"},
	{regexp.MustCompile(`(?i)\bdd\b`), "raw disk writes"},
	{regexp.MustCompile(`(?i)\b(fdisk|parted)\b`), "disk partitioning"},
	{regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff|halt)\b`), "shutdown/restart"},
	{regexp.MustCompile(`(?i)\b(kill|killall|pkill)\b`), "kill processes"},
	{regexp.MustCompile(`(?i)\b(eval|exec)\b`), "execute dynamic code"},
	{regexp.MustCompile(`(?i)\bsudo\b`), "privilege escalation"},
	{regexp.MustCompile(`(?i)\bgit\s+clean\b`), "destructive git clean"},
	{regexp.MustCompile(`(?i)\bgit\s+reset\s+--hard\b`), "destructive git reset"},
	{regexp.MustCompile(`(?i)\bgit\s+push\b`), "git push"},
}

var allowedPrefixes = []*regexp.Regexp{
	// Git (read-only)
	regexp.MustCompile(`(?i)^\s*git\s+(status|diff|log|show|rev-parse|branch)\b`),
	// File listing (read-only)
	regexp.MustCompile(`(?i)^\s*(ls|dir)\b`),
	// File reading (read-only)
	regexp.MustCompile(`(?i)^\s*(cat|head|tail)\b`),
	// Grep-like search (read-only)
	regexp.MustCompile(`(?i)^\s*(grep|rg)\b`),
	// Misc read-only info
	regexp.MustCompile(`(?i)^\s*(pwd|whoami)\b`),
}

var compoundTokens = []string{"\n", "\r", ";", "&&", "||", "|"}

var redirectTokens = []string{">", "<"}

// Decide evaluates a single command against the policy.
func Decide(command string) Decision {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return Decision{Reason: "command must be a non-empty string"}
	}
	if len(cmd) > maxCommandLen {
		return Decision{Reason: "command too long"}
	}

	// Multi-statement composition is the single biggest risk, so it goes first.
	for _, tok := range compoundTokens {
		if strings.Contains(cmd, tok) {
			return Decision{Reason: "compound commands are not allowed"}
		}
	}
	for _, tok := range redirectTokens {
		if strings.Contains(cmd, tok) {
			return Decision{Reason: "redirection is not allowed"}
		}
	}

	for _, t := range deniedTokens {
		if t.pattern.MatchString(cmd) {
			return Decision{Reason: fmt.Sprintf("blocked potentially dangerous command (%s)", t.why)}
		}
	}

	for _, p := range allowedPrefixes {
		if p.MatchString(cmd) {
			return Decision{Allowed: true}
		}
	}
	return Decision{Reason: "command not in allowlist"}
}
