package model

import (
	"encoding/json"
	"time"
)

// QueryKind classifies an executed statement.
type QueryKind string

const (
	KindSelect QueryKind = "SELECT"
	KindInsert QueryKind = "INSERT"
	KindUpdate QueryKind = "UPDATE"
	KindDelete QueryKind = "DELETE"
	KindDDL    QueryKind = "DDL"
	KindOther  QueryKind = "OTHER"
)

// QueryResult is the structured outcome of one pipeline or executor call.
// A failed result has Success=false, no rows and a single human-readable
// ErrorMessage.
type QueryResult struct {
	Success       bool             `json:"success"`
	Data          []map[string]any `json:"data"`
	RowCount      int              `json:"rowCount"`
	ExecutionTime time.Duration    `json:"-"`
	ExecutedAt    time.Time        `json:"executedAt"`
	ErrorMessage  string           `json:"errorMessage,omitempty"`
	Metadata      *QueryMetadata   `json:"metadata,omitempty"`
}

// QueryMetadata records what was actually run.
type QueryMetadata struct {
	Query         string         `json:"sql"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Kind          QueryKind      `json:"queryType"`
	AffectedRows  *int64         `json:"affectedRows,omitempty"`
	GeneratedKeys []any          `json:"generatedKeys,omitempty"`
}

// MarshalJSON adds executionTimeMs next to the regular fields.
func (r QueryResult) MarshalJSON() ([]byte, error) {
	type plain QueryResult
	return json.Marshal(struct {
		plain
		ExecutionTimeMs int64 `json:"executionTimeMs"`
	}{plain(r), r.ExecutionTime.Milliseconds()})
}

// FailedResult builds a failed result that started at start.
func FailedResult(start time.Time, msg string) *QueryResult {
	return &QueryResult{
		Success:       false,
		Data:          []map[string]any{},
		RowCount:      0,
		ExecutionTime: time.Since(start),
		ExecutedAt:    time.Now(),
		ErrorMessage:  msg,
	}
}

// ValidationResult is the safety gate's verdict on a candidate query.
type ValidationResult struct {
	Valid       bool     `json:"isValid"`
	SafetyScore int      `json:"safetyScore"` // 0-100
	Warnings    []string `json:"warnings"`
	Blocked     bool     `json:"blocked"`
	Reason      string   `json:"reason,omitempty"`
}

// Allowed reports whether the query may proceed to execution.
func (v ValidationResult) Allowed() bool {
	return v.Valid && !v.Blocked
}
