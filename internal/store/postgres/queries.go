package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/baywatch/internal/model"
	"github.com/alfredjeanlab/baywatch/internal/store"
)

// sessionColumns is the column list used for SELECT statements on the sessions table.
const sessionColumns = `id, target_label, confidence, started_at, ended_at, tags, reads, source_ip`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateSession(ctx context.Context, db executor, s *model.Session) error {
	reads, err := readsJSON(s.Reads)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID,
		s.TargetLabel,
		s.Confidence,
		s.StartedAt,
		nullTimePtr(s.EndedAt),
		pq.Array(tagsOrEmpty(s.Tags)),
		reads,
		nullStringPtr(s.SourceIP),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

func queryCloseSession(ctx context.Context, db executor, s *model.Session) error {
	reads, err := readsJSON(s.Reads)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			tags = EXCLUDED.tags,
			reads = EXCLUDED.reads,
			source_ip = EXCLUDED.source_ip`,
		s.ID,
		s.TargetLabel,
		s.Confidence,
		s.StartedAt,
		nullTimePtr(s.EndedAt),
		pq.Array(tagsOrEmpty(s.Tags)),
		reads,
		nullStringPtr(s.SourceIP),
	)
	if err != nil {
		return fmt.Errorf("close session %s: %w", s.ID, err)
	}
	return nil
}

func queryGetSession(ctx context.Context, db executor, id string) (*model.Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

func queryListSessions(ctx context.Context, db executor, filter model.SessionFilter) ([]*model.Session, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.TagID != "" {
		whereClauses = append(whereClauses, nextArg()+" = ANY(tags)")
		args = append(args, filter.TagID)
	}

	if filter.Open != nil {
		if *filter.Open {
			whereClauses = append(whereClauses, "ended_at IS NULL")
		} else {
			whereClauses = append(whereClauses, "ended_at IS NOT NULL")
		}
	}

	if filter.Since != nil {
		whereClauses = append(whereClauses, "started_at >= "+nextArg())
		args = append(args, *filter.Since)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + sessionColumns + " FROM sessions" + whereSQL + " ORDER BY started_at DESC"

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	var total int
	for rows.Next() {
		s, t, err := scanSessionWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sessions: %w", err)
		}
		total = t
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan sessions: %w", err)
	}

	return sessions, total, nil
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, session_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		e.Topic, nullString(e.SessionID), jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, sessionID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, session_id, payload, created_at
		FROM events
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}
