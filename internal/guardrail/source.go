package guardrail

import (
	"fmt"
	"strings"
)

// forbiddenSourceMarkers indicate the competitor intelligence may come from
// an unethical source. Any match is a hard block regardless of other checks.
var forbiddenSourceMarkers = []string{
	"leaked",
	"hacked",
	"stolen",
	"confidential",
	"internal document",
	"employee said",
	"insider",
}

// ValidateDataSource scans the raw text for markers of unethically sourced
// competitor data.
func ValidateDataSource(text string) Result {
	result := pass()

	lower := strings.ToLower(text)
	for _, marker := range forbiddenSourceMarkers {
		if strings.Contains(lower, marker) {
			result.addViolation(CategoryUnethicalSource, SeverityCritical,
				fmt.Sprintf("competitor data may be from an unethical source: %s", marker))
			return result
		}
	}
	return result
}
