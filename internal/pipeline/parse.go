package pipeline

import (
	"regexp"
	"strings"
)

var (
	sqlBlockPattern    = regexp.MustCompile("(?is)```sql(.*?)```")
	explanationPattern = regexp.MustCompile(`(?is)EXPLANATION:\s*(.*?)(?:\n\n|\z)`)
	explanationPrefix  = regexp.MustCompile(`(?i)^EXPLANATION:\s*`)
	commentPattern     = regexp.MustCompile(`--.*`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// ParseSQLResponse splits a model completion into the SQL query and its
// explanation. A fenced sql block wins; otherwise lines are scanned for a
// statement starting with SELECT or WITH and ending at a semicolon. When no
// SQL is found the whole response becomes the explanation and the query is
// empty, which the caller treats as a generation miss.
func ParseSQLResponse(response string) (string, string) {
	if blocks := sqlBlockPattern.FindStringSubmatch(response); blocks != nil {
		sqlQuery := strings.TrimSpace(blocks[1])
		explanation := ""
		if match := explanationPattern.FindStringSubmatch(response); match != nil {
			explanation = strings.TrimSpace(match[1])
		} else if parts := strings.SplitN(response, "```", 3); len(parts) > 2 {
			explanation = explanationPrefix.ReplaceAllString(strings.TrimSpace(parts[2]), "")
		}
		if explanation == "" {
			explanation = "SQL query generated successfully."
		}
		return CleanSQL(sqlQuery), explanation
	}

	var sqlLines, explanationLines []string
	inSQL := false
	for _, line := range strings.Split(response, "\n") {
		upper := strings.ToUpper(strings.TrimSpace(line))
		if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") || inSQL {
			inSQL = true
			sqlLines = append(sqlLines, line)
			if strings.HasSuffix(strings.TrimSpace(line), ";") {
				inSQL = false
			}
		} else {
			explanationLines = append(explanationLines, line)
		}
	}

	if len(sqlLines) > 0 {
		explanation := explanationPrefix.ReplaceAllString(strings.TrimSpace(strings.Join(explanationLines, "\n")), "")
		if explanation == "" {
			explanation = "SQL query generated successfully."
		}
		return CleanSQL(strings.Join(sqlLines, "\n")), explanation
	}

	return "", strings.TrimSpace(response)
}

// CleanSQL normalizes whitespace, strips line comments and trailing
// semicolons, and terminates the query with a single semicolon.
func CleanSQL(sqlQuery string) string {
	if strings.TrimSpace(sqlQuery) == "" {
		return ""
	}
	sqlQuery = commentPattern.ReplaceAllString(sqlQuery, "")
	sqlQuery = whitespacePattern.ReplaceAllString(strings.TrimSpace(sqlQuery), " ")
	sqlQuery = strings.TrimRight(sqlQuery, " ;")
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ""
	}
	return sqlQuery + ";"
}
