// Package guardrail implements the safety checks gating both ends of the
// decision pipeline: input validation, data-source ethics, per-business
// rate limiting, and output validation.
//
// Every check is an independently callable function returning a Result.
// Hard violations halt the pipeline (or, at the output stage, force the
// safe fallback decision); warnings are recorded but never block.
package guardrail

// Severity grades a violation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category identifies which check produced a violation.
type Category string

const (
	CategoryInputTooShort       Category = "input_too_short"
	CategoryInputTooLong        Category = "input_too_long"
	CategoryHarmfulIntent       Category = "harmful_intent_detected"
	CategorySpam                Category = "spam_detected"
	CategoryUnethicalSource     Category = "unethical_data_source"
	CategoryRateLimitExceeded   Category = "rate_limit_exceeded"
	CategoryForbiddenStrategy   Category = "forbidden_strategy"
	CategoryInconsistentUrgency Category = "inconsistent_urgency"
)

// Violation records one failed check.
type Violation struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the outcome of one or more guardrail checks.
type Result struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// pass returns a clean passing result.
func pass() Result {
	return Result{Passed: true}
}

// addViolation marks the result failed and appends the violation.
func (r *Result) addViolation(category Category, severity Severity, message string) {
	r.Passed = false
	r.Violations = append(r.Violations, Violation{
		Category: category,
		Severity: severity,
		Message:  message,
	})
}

// addWarning appends a non-blocking warning.
func (r *Result) addWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}

// Merge folds other into r: any failure fails the merged result, and all
// violations and warnings are carried over.
func (r *Result) Merge(other Result) {
	if !other.Passed {
		r.Passed = false
	}
	r.Violations = append(r.Violations, other.Violations...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// First returns the first violation, or a zero Violation when none exist.
func (r Result) First() Violation {
	if len(r.Violations) == 0 {
		return Violation{}
	}
	return r.Violations[0]
}
