// Package safety decides whether generated text may be executed as a query.
//
// The gate is lexical. It never parses SQL, so a SELECT that calls a
// write-capable function passes as long as no forbidden keyword appears.
package safety

import (
	"regexp"
	"strings"
)

const (
	ReasonEmpty             = "empty"
	ReasonMultipleStatement = "multiple_statements"
	ReasonForbiddenKeyword  = "forbidden_keyword"
	ReasonNotSelect         = "not_select"
)

// forbiddenKeywords are matched case-insensitively as whole words anywhere in
// the candidate, string literals and comments included.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "ALTER", "DROP", "TRUNCATE",
	"CREATE", "REPLACE", "ATTACH", "DETACH", "PRAGMA",
}

var forbiddenPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

type Decision struct {
	Safe    bool   `json:"safe"`
	Reason  string `json:"reason,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

// Message is the operator-facing text for a rejected decision.
func (d Decision) Message() string {
	switch d.Reason {
	case "":
		return ""
	case ReasonEmpty:
		return "the generated SQL is empty"
	case ReasonMultipleStatement:
		return "the generated SQL contains more than one statement"
	case ReasonForbiddenKeyword:
		return "the generated SQL contains the forbidden keyword " + d.Keyword
	default:
		return "the generated SQL is not a single SELECT statement"
	}
}

// Check applies every rule in order and reports the first one that fails.
// Only a single trailing semicolon is tolerated.
func Check(candidate string) Decision {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return Decision{Reason: ReasonEmpty}
	}
	if strings.Contains(trimmed[:len(trimmed)-1], ";") {
		return Decision{Reason: ReasonMultipleStatement}
	}
	if match := forbiddenPattern.FindString(trimmed); match != "" {
		return Decision{Reason: ReasonForbiddenKeyword, Keyword: strings.ToUpper(match)}
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return Decision{Reason: ReasonNotSelect}
	}
	return Decision{Safe: true}
}

func IsSafeSelect(candidate string) bool {
	return Check(candidate).Safe
}
