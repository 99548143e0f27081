// Package archive writes finished conversation turns to object storage as
// parquet, one object per turn, so sessions can be analyzed after the fact.
package archive

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Record is one archived conversation turn.
type Record struct {
	SessionID     string
	InteractionID string
	Timestamp     time.Time
	Question      string
	SQLQuery      string
	Answer        string
	Tables        []string
	RowCount      int
}

type parquetInteraction struct {
	SessionID       string `parquet:"session_id"`
	InteractionID   string `parquet:"interaction_id"`
	AskedAtUnixMs   int64  `parquet:"asked_at_unix_ms"`
	Question        string `parquet:"question"`
	SQLQuery        string `parquet:"sql_query"`
	Answer          string `parquet:"answer"`
	TablesAccessed  string `parquet:"tables_accessed"`
	ResultRowCount  int64  `parquet:"result_row_count"`
}

// EncodeRecords serializes records into a single parquet file.
func EncodeRecords(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("records are required")
	}

	rows := make([]parquetInteraction, 0, len(records))
	for _, record := range records {
		rows = append(rows, parquetInteraction{
			SessionID:      record.SessionID,
			InteractionID:  record.InteractionID,
			AskedAtUnixMs:  record.Timestamp.UnixMilli(),
			Question:       record.Question,
			SQLQuery:       record.SQLQuery,
			Answer:         record.Answer,
			TablesAccessed: strings.Join(record.Tables, ","),
			ResultRowCount: int64(record.RowCount),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetInteraction](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
