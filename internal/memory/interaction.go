// Package memory implements the hybrid conversation context: a per-session
// sliding window of recent interactions plus a shared embedding index that
// recalls similar analyses from other sessions.
package memory

import "time"

type Interaction struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Timestamp    time.Time `json:"timestamp"`
	Question     string    `json:"question"`
	SQLQuery     string    `json:"sql_query"`
	Answer       string    `json:"answer"`
	Tables       []string  `json:"tables"`
	QuestionType string    `json:"question_type"`
	RowCount     int       `json:"row_count"`
}

// Match is a recalled interaction from the semantic index together with its
// similarity to the current question.
type Match struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	SQLQuery   string    `json:"sql_query"`
	Tables     []string  `json:"tables"`
	Similarity float64   `json:"similarity"`
	Timestamp  time.Time `json:"timestamp"`
}

// Context is what the pipeline receives for prompt building.
type Context struct {
	Recent               []Interaction `json:"recent_interactions"`
	Relevant             []Match       `json:"relevant_history"`
	Flow                 string        `json:"conversation_flow"`
	HasTemporalReference bool          `json:"has_temporal_reference"`
}
