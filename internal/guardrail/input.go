package guardrail

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input length bounds. Kept in sync with model.MinAnalysisTextLen /
// MaxAnalysisTextLen, which the HTTP layer enforces earlier.
const (
	minInputLen = 10
	maxInputLen = 3000
)

// harmfulPatterns detect requests asking for unethical or illegal moves
// against a competitor. Any match is a hard block.
var harmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`hack\s+(into\s+)?(the\s+)?competitor`),
	regexp.MustCompile(`\bddos\b`),
	regexp.MustCompile(`\bsabotage\b`),
	regexp.MustCompile(`illegal\s+activity`),
	regexp.MustCompile(`steal\s+(data|information|secrets|customers' data)`),
	regexp.MustCompile(`\bbribe\b`),
	regexp.MustCompile(`\bblackmail\b`),
}

// piiPatterns flag personally identifiable information. Matches produce
// warnings only — the request proceeds but the caller is told to scrub.
var piiPatterns = map[string]*regexp.Regexp{
	"national ID":  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"payment card": regexp.MustCompile(`\b\d{16}\b`),
	"email":        regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
}

// runOfLetters catches keyboard smashing.
var runOfLetters = regexp.MustCompile(`[a-z]{20,}`)

// ValidateInput checks the raw text before any processing: length bounds,
// harmful intent, PII (warning only), and spam heuristics.
func ValidateInput(text string) Result {
	result := pass()

	// Bounds are counted in characters, not bytes, so multi-byte reports
	// are not penalized. Surrounding whitespace never counts either way.
	length := utf8.RuneCountInString(strings.TrimSpace(text))
	if length < minInputLen {
		result.addViolation(CategoryInputTooShort, SeverityMedium,
			fmt.Sprintf("input must be at least %d characters", minInputLen))
		return result
	}
	if length > maxInputLen {
		result.addViolation(CategoryInputTooLong, SeverityMedium,
			fmt.Sprintf("input exceeds %d character limit", maxInputLen))
		return result
	}

	lower := strings.ToLower(text)
	for _, p := range harmfulPatterns {
		if p.MatchString(lower) {
			result.addViolation(CategoryHarmfulIntent, SeverityCritical,
				"input contains potentially harmful or unethical intent")
			return result
		}
	}

	for label, p := range piiPatterns {
		if p.MatchString(text) {
			result.addWarning(fmt.Sprintf(
				"input may contain personally identifiable information (%s); consider removing sensitive data", label))
		}
	}

	if isSpam(text) {
		result.addViolation(CategorySpam, SeverityLow,
			"input appears to be spam or gibberish")
	}

	return result
}

// isSpam applies cheap lexical heuristics: excessive word repetition and
// long unbroken letter runs.
func isSpam(text string) bool {
	words := strings.Fields(text)
	if len(words) > 5 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < 0.3 {
			return true
		}
	}
	return runOfLetters.MatchString(strings.ToLower(text))
}
