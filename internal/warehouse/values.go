package warehouse

import (
	"context"
	"fmt"
	"sync"
)

type valueCache struct {
	mu     sync.Mutex
	values map[string][]string
}

func newValueCache() *valueCache {
	return &valueCache{values: map[string][]string{}}
}

// DistinctValues returns the distinct non-null values of a categorical column,
// cached for the lifetime of the store. The pipeline feeds these into prompts
// so the model matches entity and department names exactly.
func (s *SQLStore) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if !identPattern.MatchString(column) {
		return nil, fmt.Errorf("invalid column name %q", column)
	}
	if limit <= 0 {
		limit = 100
	}

	cacheKey := table + "." + column

	s.values.mu.Lock()
	cached, ok := s.values.values[cacheKey]
	s.values.mu.Unlock()
	if ok {
		return cached, nil
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d`,
		quoteIdent(column), quoteIdent(table), quoteIdent(column), limit,
	)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct values of %s: %w", cacheKey, err)
	}
	defer func() { _ = rows.Close() }()

	var result []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		result = append(result, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}

	s.values.mu.Lock()
	s.values.values[cacheKey] = result
	s.values.mu.Unlock()
	return result, nil
}
