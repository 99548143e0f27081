package pipeline

import (
	"fmt"
	"strings"

	"github.com/ledgerchat/ledgerchat/internal/warehouse"
)

// FallbackAnswer builds a deterministic answer from the result shape alone,
// used when the model cannot produce one.
func FallbackAnswer(result warehouse.Result, question string) string {
	if result.RowCount == 0 {
		return fmt.Sprintf("I executed your query but found no data matching your criteria for: %s", question)
	}

	summary := fmt.Sprintf("I found %d records", result.RowCount)
	if len(result.Columns) > 0 {
		columns := result.Columns
		if len(columns) > 5 {
			columns = columns[:5]
		}
		summary += fmt.Sprintf(" with information about: %s", strings.Join(columns, ", "))
	}
	return summary + ". The data has been retrieved successfully, but I'm having trouble generating a detailed analysis at the moment."
}
