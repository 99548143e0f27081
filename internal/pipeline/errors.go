package pipeline

import (
	"regexp"
	"strings"
)

var (
	quotedNamePattern  = regexp.MustCompile(`"([^"]+)"`)
	singleQuotePattern = regexp.MustCompile(`'([^']+)'`)
	nearTokenPattern   = regexp.MustCompile(`(?i)near "?'?([^"']+)'?"?`)
	driverPrefixes     = []string{"Binder Error: ", "Catalog Error: ", "Parser Error: ", "Conversion Error: ", "ERROR: "}
)

// StripDriverNoise removes engine prefixes such as "Binder Error: " so the
// text that reaches prompts and users reads as a plain SQL error.
func StripDriverNoise(message string) string {
	for _, prefix := range driverPrefixes {
		message = strings.ReplaceAll(message, prefix, "")
	}
	return message
}

// ClassifyValidationError turns a driver error into guidance the fixer prompt
// and the user can act on. Substrings cover both DuckDB and Postgres message
// shapes.
func ClassifyValidationError(err error) string {
	if err == nil {
		return ""
	}
	message := StripDriverNoise(err.Error())
	lowered := strings.ToLower(message)

	switch {
	case strings.Contains(lowered, "column") && notFoundLike(lowered):
		name := firstQuotedName(message)
		return "Column '" + name + "' not found. Check column names and quoting."
	case (strings.Contains(lowered, "table") || strings.Contains(lowered, "relation")) && notFoundLike(lowered):
		name := firstQuotedName(message)
		return "Table '" + name + "' not found. Check table names."
	case strings.Contains(lowered, "syntax error"):
		near := nearToken(message)
		switch near {
		case ";":
			return "Remove the semicolon from the query"
		case ",":
			return "Check for extra or missing commas in the query"
		case "":
			return "Syntax error: " + message
		default:
			return "Syntax error near '" + near + "'"
		}
	case strings.Contains(lowered, "could not convert") ||
		strings.Contains(lowered, "conversion failed") ||
		strings.Contains(lowered, "invalid input syntax"):
		if strings.Contains(lowered, "varchar") && strings.Contains(lowered, "int") {
			return "Data type mismatch: \"month\" is VARCHAR ('YYYY-MM'), not INTEGER"
		}
		return "Data type conversion error: " + message
	default:
		return "SQL error: " + message
	}
}

func notFoundLike(lowered string) bool {
	return strings.Contains(lowered, "not found") ||
		strings.Contains(lowered, "does not exist") ||
		strings.Contains(lowered, "no such")
}

func firstQuotedName(message string) string {
	if match := quotedNamePattern.FindStringSubmatch(message); match != nil {
		return match[1]
	}
	if match := singleQuotePattern.FindStringSubmatch(message); match != nil {
		return match[1]
	}
	return "unknown"
}

func nearToken(message string) string {
	match := nearTokenPattern.FindStringSubmatch(message)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}
