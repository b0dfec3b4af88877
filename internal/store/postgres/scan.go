package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/baywatch/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// sessionDest returns scan destinations in sessionColumns order.
func sessionDest(s *model.Session, endedAt *sql.NullTime, reads *[]byte, sourceIP *sql.NullString) []any {
	return []any{
		&s.ID,
		&s.TargetLabel,
		&s.Confidence,
		&s.StartedAt,
		endedAt,
		pq.Array(&s.Tags),
		reads,
		sourceIP,
	}
}

func finishSession(s *model.Session, endedAt sql.NullTime, reads []byte, sourceIP sql.NullString) error {
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	if sourceIP.Valid {
		ip := sourceIP.String
		s.SourceIP = &ip
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if len(reads) > 0 {
		if err := json.Unmarshal(reads, &s.Reads); err != nil {
			return fmt.Errorf("decode reads for %s: %w", s.ID, err)
		}
		if len(s.Reads) == 0 {
			s.Reads = nil
		}
	}
	return nil
}

// scanSession scans a single row into a model.Session.
// The row must contain columns in the order defined by sessionColumns.
func scanSession(row scannable) (*model.Session, error) {
	var (
		s        model.Session
		endedAt  sql.NullTime
		reads    []byte
		sourceIP sql.NullString
	)
	if err := row.Scan(sessionDest(&s, &endedAt, &reads, &sourceIP)...); err != nil {
		return nil, err
	}
	if err := finishSession(&s, endedAt, reads, sourceIP); err != nil {
		return nil, err
	}
	return &s, nil
}

// scanSessionWithTotal scans a row with a leading total_count column.
func scanSessionWithTotal(row scannable) (*model.Session, int, error) {
	var (
		s        model.Session
		total    int
		endedAt  sql.NullTime
		reads    []byte
		sourceIP sql.NullString
	)
	dest := append([]any{&total}, sessionDest(&s, &endedAt, &reads, &sourceIP)...)
	if err := row.Scan(dest...); err != nil {
		return nil, 0, err
	}
	if err := finishSession(&s, endedAt, reads, sourceIP); err != nil {
		return nil, 0, err
	}
	return &s, total, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		sessionID sql.NullString
		payload   []byte
	)
	err := row.Scan(&e.ID, &e.Topic, &sessionID, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.SessionID = sessionID.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// readsJSON encodes per-tag acceptance records for the reads JSONB column.
func readsJSON(reads []model.SessionTag) ([]byte, error) {
	if len(reads) == 0 {
		return []byte("[]"), nil
	}
	b, err := json.Marshal(reads)
	if err != nil {
		return nil, fmt.Errorf("encode reads: %w", err)
	}
	return b, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
