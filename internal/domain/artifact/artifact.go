// Package artifact defines the named documents the loop produces and the
// conventions applied to their markdown content.
package artifact

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Strob0t/LoopForge/internal/domain"
)

// Well-known artifact names. Every cycle writes plan, handoff and review;
// spec is written by the spec generator ahead of the first cycle.
const (
	NameSpec    = "spec.md"
	NamePlan    = "plan.md"
	NameHandoff = "handoff.md"
	NameReview  = "review.md"
)

// Known returns the well-known artifact names in presentation order.
func Known() []string {
	return []string{NameSpec, NamePlan, NameHandoff, NameReview}
}

// maxNameLen matches the cap the transport applies to resource names.
const maxNameLen = 128

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName rejects anything that is not a plain filename. Path
// separators, traversal sequences and leading dots all fail the pattern, so
// a write can only ever land inside the artifacts directory.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name must not be empty: %w", domain.ErrValidation)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("artifact name exceeds %d characters: %w", maxNameLen, domain.ErrValidation)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("artifact name %q contains invalid characters: %w", name, domain.ErrValidation)
	}
	return nil
}

// Header returns the metadata comment prepended to generated artifacts so a
// reader can tell which model and extensions produced them.
func Header(model string, extensions []string) string {
	if model == "" {
		model = "default"
	}
	ext := "default"
	if len(extensions) > 0 {
		ext = strings.Join(extensions, ",")
	}
	return fmt.Sprintf("<!-- loopforge: model=%s extensions=%s -->\n\n", model, ext)
}

// StripPreface drops any chatter a CLI printed before the first markdown
// heading. If no heading exists the text is returned unchanged.
func StripPreface(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			return strings.TrimSpace(strings.Join(lines[i:], "\n")) + "\n"
		}
	}
	return text
}
