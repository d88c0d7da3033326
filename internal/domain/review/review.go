// Package review provides heuristic quality checks for spec and plan
// artifacts. The checks are deliberately simple and repeatable so their
// feedback is stable across runs: they catch scope creep, unresolved
// drafting text and missing structure before implementation starts.
package review

import (
	"fmt"
	"regexp"
	"strings"
)

// GateResult reports whether a spec/plan pair clears the minimum bar for
// starting implementation.
type GateResult struct {
	OK     bool     `json:"ok"`
	Issues []string `json:"issues"`
}

// Result is the full review of a spec/plan pair. RevisionPrompt is ready to
// feed back to a planner for another attempt.
type Result struct {
	Score          int      `json:"score_1_to_10"`
	Issues         []string `json:"issues"`
	Strengths      []string `json:"strengths"`
	RevisionPrompt string   `json:"revision_prompt"`
}

var (
	phaseHeading    = regexp.MustCompile(`(?im)^\s*##+\s*phase\b`)
	checkboxLine    = regexp.MustCompile(`(?m)^\s*-\s*\[\s*[xX ]\s*\]\s+`)
	taskCheckbox    = regexp.MustCompile(`(?m)^\s*-\s*\[\s*\]\s*Task:`)
	bulletLine      = regexp.MustCompile(`(?m)^\s*-\s+`)
	nextHeading     = regexp.MustCompile(`(?im)^\s*##+\s+`)
	testsMention    = regexp.MustCompile(`(?i)\btest(s|ing)?\b`)
	edgeCaseMention = regexp.MustCompile(`(?i)\bedge case(s)?\b`)
)

// thinkingMarkers flag drafting text that must never survive into a final
// spec or plan.
var thinkingMarkers = []*regexp.Regexp{
	regexp.MustCompile(`\bwait,\b`),
	regexp.MustCompile(`\bthis is confusing\b`),
	regexp.MustCompile(`\blet'?s re-?read\b`),
	regexp.MustCompile(`\brevised logic\b`),
	regexp.MustCompile(`\bbrainstorm\b`),
	regexp.MustCompile(`\bi will now\b`),
}

// creepTerms are features that rarely belong in a small local task. A term
// only counts against an artifact when the user brief never asked for it.
var creepTerms = []struct {
	needle string
	label  string
}{
	{"subtraction", "Subtraction"},
	{"authentication", "Authentication"},
	{"payments", "Payments"},
	{"invoic", "Invoicing"},
	{"database", "Database"},
	{"kubernetes", "Kubernetes"},
	{"docker", "Docker"},
	{"rbac", "RBAC"},
}

func headingPattern(heading string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^\s*##+\s*` + regexp.QuoteMeta(heading) + `\s*$`)
}

func hasHeading(md, heading string) bool {
	return headingPattern(heading).MatchString(md)
}

func findHeading(md string, candidates []string) (string, bool) {
	for _, h := range candidates {
		if hasHeading(md, h) {
			return h, true
		}
	}
	return "", false
}

// countBulletsInSection counts "- " bullets between the heading and the next
// "##" heading (or end of document).
func countBulletsInSection(md, heading string) int {
	loc := headingPattern(heading).FindStringIndex(md)
	if loc == nil {
		return 0
	}
	section := md[loc[1]:]
	if stop := nextHeading.FindStringIndex(section); stop != nil {
		section = section[:stop[0]]
	}
	return len(bulletLine.FindAllString(section, -1))
}

func containsThinking(md string) bool {
	text := strings.ToLower(md)
	for _, m := range thinkingMarkers {
		if m.MatchString(text) {
			return true
		}
	}
	return false
}

func scopeCreep(md, brief string) []string {
	mdLower := strings.ToLower(md)
	briefLower := strings.ToLower(brief)
	var issues []string
	for _, t := range creepTerms {
		if strings.Contains(mdLower, t.needle) && !strings.Contains(briefLower, t.needle) {
			issues = append(issues, fmt.Sprintf("Mentions '%s' but it's not in the user brief (scope creep).", t.label))
		}
	}
	return issues
}

// gateMinBullets is the acceptance-criteria floor for a local task.
const gateMinBullets = 4

// Gate applies the hard minimum checks a spec/plan pair must pass before the
// loop proceeds. OK is true only when no issue was found.
func Gate(spec, plan, brief string) GateResult {
	issues := []string{}

	if containsThinking(spec) {
		issues = append(issues, "Spec contains 'thinking out loud' / unresolved reasoning; it must be a clean, final spec.")
	}
	if containsThinking(plan) {
		issues = append(issues, "Plan contains meta-commentary; it must be a clean, final plan.")
	}

	if !hasHeading(spec, "Non-goals") && !hasHeading(spec, "Out of Scope") && !hasHeading(spec, "Non-Goals") {
		issues = append(issues, "Spec is missing a 'Non-goals' (or 'Out of Scope') section.")
	}
	if n := countBulletsInSection(spec, "Acceptance Criteria"); n < gateMinBullets {
		issues = append(issues, fmt.Sprintf("Spec acceptance criteria is too weak (found %d bullet(s)).", n))
	}

	if !phaseHeading.MatchString(plan) {
		issues = append(issues, "Plan should be structured into 'Phase' sections (## Phase ...).")
	}
	if !taskCheckbox.MatchString(plan) {
		issues = append(issues, "Plan should contain checkbox tasks in the form '- [ ] Task: ...'.")
	}

	issues = append(issues, scopeCreep(spec, brief)...)
	issues = append(issues, scopeCreep(plan, brief)...)

	return GateResult{OK: len(issues) == 0, Issues: issues}
}

// GateSpec applies only the spec-side gate checks. Spec generation retries
// use it because no plan exists yet while the spec is being drafted.
func GateSpec(spec, brief string) GateResult {
	issues := []string{}

	if containsThinking(spec) {
		issues = append(issues, "Spec contains 'thinking out loud' / unresolved reasoning; it must be a clean, final spec.")
	}
	if !hasHeading(spec, "Non-goals") && !hasHeading(spec, "Out of Scope") && !hasHeading(spec, "Non-Goals") {
		issues = append(issues, "Spec is missing a 'Non-goals' (or 'Out of Scope') section.")
	}
	if n := countBulletsInSection(spec, "Acceptance Criteria"); n < gateMinBullets {
		issues = append(issues, fmt.Sprintf("Spec acceptance criteria is too weak (found %d bullet(s)).", n))
	}
	issues = append(issues, scopeCreep(spec, brief)...)

	return GateResult{OK: len(issues) == 0, Issues: issues}
}

// SpecRevisionPrompt asks the planner for a corrected spec after a failed
// gate. The planner call is one-shot, so the prompt demands the full
// document back rather than an in-place edit.
func SpecRevisionPrompt(issues []string) string {
	lines := make([]string, len(issues))
	for i, s := range issues {
		lines[i] = "- " + s
	}
	return "Quality gate failed for the generated spec.\n\n" +
		"Fix the spec now, WITHOUT adding extra scope.\n" +
		"Hard requirements:\n" +
		"- Must include: Non-goals/Out of Scope AND Acceptance Criteria (bullet list).\n" +
		"- Must be final and clean (no 'wait/confusing/revised logic' or brainstorming).\n\n" +
		"Issues found:\n" + strings.Join(lines, "\n") + "\n\n" +
		"Return the full corrected spec as markdown."
}

type weightedIssue struct {
	weight int
	text   string
}

// Evaluate scores a spec/plan pair from 1 (unusable) to 10 (ready to build)
// and produces a revision prompt covering every issue found.
func Evaluate(spec, plan, brief string) Result {
	var found []weightedIssue
	strengths := []string{}

	add := func(weight int, text string) {
		found = append(found, weightedIssue{weight: weight, text: text})
	}

	if containsThinking(spec) || containsThinking(plan) {
		add(4, "Contains 'thinking out loud' / contradictory drafting text; spec/plan must be final and clean.")
	}

	if h, ok := findHeading(spec, []string{"Overview", "Summary", "Problem", "Context"}); ok {
		strengths = append(strengths, fmt.Sprintf("Has a clear `%s` section.", h))
	} else {
		add(1, "Missing an `Overview`/`Summary` section.")
	}

	if h, ok := findHeading(spec, []string{"Acceptance Criteria", "Success Criteria", "Definition of Done"}); !ok {
		add(3, "Missing `Acceptance Criteria` section.")
	} else if countBulletsInSection(spec, h) < 3 {
		add(1, "Acceptance Criteria is too thin (needs at least 3 bullet points).")
	} else {
		strengths = append(strengths, "Has explicit Acceptance Criteria.")
	}

	if _, ok := findHeading(spec, []string{"Non-goals", "Non Goals", "Out of Scope", "Out-of-scope", "Not in scope"}); !ok {
		add(2, "Missing `Non-goals`/`Out of Scope` section to prevent scope creep.")
	} else {
		strengths = append(strengths, "Has scope boundaries (Non-goals / Out of Scope).")
	}

	if len(phaseHeading.FindAllString(plan, -1)) < 2 {
		add(1, "Plan should be organized into multiple phases (at least 2).")
	}
	if len(checkboxLine.FindAllString(plan, -1)) < 6 {
		add(1, "Plan has too few actionable checkbox tasks; make tasks concrete and checkable.")
	} else {
		strengths = append(strengths, "Plan uses checkbox tasks.")
	}

	if !testsMention.MatchString(plan) {
		add(1, "Plan is missing explicit testing tasks (unit/integration/manual checks).")
	}
	if !edgeCaseMention.MatchString(spec) && !edgeCaseMention.MatchString(plan) {
		add(1, "Does not call out edge cases explicitly.")
	}

	for _, s := range scopeCreep(spec+"\n"+plan, brief) {
		add(2, s)
	}

	score := 10
	issues := make([]string, 0, len(found))
	for _, i := range found {
		score -= i.weight
		issues = append(issues, i.text)
	}
	if score < 1 {
		score = 1
	}

	return Result{
		Score:          score,
		Issues:         issues,
		Strengths:      strengths,
		RevisionPrompt: revisionPrompt(issues),
	}
}

func revisionPrompt(issues []string) string {
	issuesText := "- None"
	if len(issues) > 0 {
		lines := make([]string, len(issues))
		for i, s := range issues {
			lines[i] = "- " + s
		}
		issuesText = strings.Join(lines, "\n")
	}
	return "Revise `spec.md` and `plan.md` in-place to be top-quality (senior engineer standard).\n\n" +
		"Rules:\n" +
		"- Do NOT add features beyond the user brief.\n" +
		"- Remove any 'thinking out loud' or contradictory drafting text.\n" +
		"- Use clear headings, bullets, and explicit scope boundaries.\n\n" +
		"Spec requirements:\n" +
		"- Include: Overview, Goals, Non-goals/Out of Scope, Requirements, Acceptance Criteria (bulleted, testable)," +
		" Edge Cases, Open Questions.\n\n" +
		"Plan requirements:\n" +
		"- 2-4 phases.\n" +
		"- Each phase has checkbox tasks (`- [ ] ...`).\n" +
		"- Include explicit tasks for testing + manual verification.\n" +
		"- Keep tasks small and implementable.\n\n" +
		fmt.Sprintf("Issues to fix:\n%s\n\n", issuesText) +
		"When done, reply: DONE"
}
