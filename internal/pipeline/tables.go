package pipeline

import "regexp"

var tableRefPattern = regexp.MustCompile("(?i)\\b(?:FROM|JOIN)\\s+[\"`]?(\\w+)")

// ExtractTables lists the table names referenced after FROM and JOIN,
// deduplicated in first-seen order.
func ExtractTables(sqlQuery string) []string {
	seen := map[string]struct{}{}
	var tables []string
	for _, match := range tableRefPattern.FindAllStringSubmatch(sqlQuery, -1) {
		name := match[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}
