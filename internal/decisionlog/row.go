package decisionlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Row is the flattened form shared by the SQL sinks.
type Row struct {
	ID            string
	LoggedAt      time.Time
	Day           string
	Digest        string
	Verdict       string
	PolicyVersion string
	RequestJSON   string
	DecisionJSON  string
}

func ToRow(e Entry) (Row, error) {
	reqJSON, err := json.Marshal(e.Request)
	if err != nil {
		return Row{}, fmt.Errorf("encode request: %w", err)
	}
	decJSON, err := json.Marshal(e.Decision)
	if err != nil {
		return Row{}, fmt.Errorf("encode decision: %w", err)
	}
	return Row{
		ID:            e.ID,
		LoggedAt:      e.LoggedAt.UTC(),
		Day:           e.Day(),
		Digest:        e.Digest,
		Verdict:       string(e.Decision.Decision),
		PolicyVersion: e.Decision.PolicyVersion,
		RequestJSON:   string(reqJSON),
		DecisionJSON:  string(decJSON),
	}, nil
}

func (r Row) Entry() (Entry, error) {
	e := Entry{ID: r.ID, LoggedAt: r.LoggedAt.UTC(), Digest: r.Digest}
	if err := json.Unmarshal([]byte(r.RequestJSON), &e.Request); err != nil {
		return Entry{}, fmt.Errorf("decode request %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.DecisionJSON), &e.Decision); err != nil {
		return Entry{}, fmt.Errorf("decode decision %s: %w", r.ID, err)
	}
	return e, nil
}

// Tx is the write side of a SQL sink inside one transaction.
type Tx interface {
	InsertEntry(e Entry) error
}
