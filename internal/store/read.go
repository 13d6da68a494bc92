package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/nbridge/internal/wire"
)

// SessionSummary describes one journaled dispatcher session.
type SessionSummary struct {
	Session string    `json:"session"`
	Calls   int       `json:"calls"`
	Drops   int       `json:"drops"`
	FirstAt time.Time `json:"first_at"`
	LastAt  time.Time `json:"last_at"`
}

// ReadCalls returns every call of a session ordered by correlation id.
// Returns an empty slice (not nil) if the session has no calls.
func (s *Store) ReadCalls(ctx context.Context, session string) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, correlation_id, domain, mode, data, extra, state,
		       response_data, response_extra, error_code, error_message,
		       issued_at, resolved_at
		FROM calls
		WHERE session = ?
		ORDER BY correlation_id ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []CallRecord{}
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// ReadCall returns one call. Returns sql.ErrNoRows if it does not exist.
func (s *Store) ReadCall(ctx context.Context, session string, id wire.CorrelationID) (CallRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session, correlation_id, domain, mode, data, extra, state,
		       response_data, response_extra, error_code, error_message,
		       issued_at, resolved_at
		FROM calls
		WHERE session = ? AND correlation_id = ?
	`, session, int64(id))

	c, err := scanCall(row)
	if err != nil {
		return CallRecord{}, err
	}
	return c, nil
}

// ReadDrops returns every drop of a session in recording order.
func (s *Store) ReadDrops(ctx context.Context, session string) ([]Drop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, correlation_id, domain, reason, recorded_at
		FROM drops
		WHERE session = ?
		ORDER BY id ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query drops: %w", err)
	}
	defer rows.Close()

	drops := []Drop{}
	for rows.Next() {
		var (
			d  Drop
			id int64
			at int64
		)
		if err := rows.Scan(&d.Session, &id, &d.Domain, &d.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan drop: %w", err)
		}
		d.CorrelationID = wire.CorrelationID(id)
		d.At = time.Unix(0, at).UTC()
		drops = append(drops, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drops: %w", err)
	}
	return drops, nil
}

// ReadSessions lists journaled sessions, oldest first.
func (s *Store) ReadSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.session, COUNT(*), MIN(c.issued_at), MAX(c.issued_at),
		       (SELECT COUNT(*) FROM drops d WHERE d.session = c.session)
		FROM calls c
		GROUP BY c.session
		ORDER BY MIN(c.issued_at) ASC, c.session COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionSummary{}
	for rows.Next() {
		var (
			ss          SessionSummary
			first, last int64
		)
		if err := rows.Scan(&ss.Session, &ss.Calls, &first, &last, &ss.Drops); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ss.FirstAt = time.Unix(0, first).UTC()
		ss.LastAt = time.Unix(0, last).UTC()
		sessions = append(sessions, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallRecord, error) {
	var (
		c        CallRecord
		id       int64
		issued   int64
		resolved sql.NullInt64
	)
	err := row.Scan(
		&c.Session, &id, &c.Domain, &c.Mode, &c.Data, &c.Extra, &c.State,
		&c.ResponseData, &c.ResponseExtra, &c.ErrorCode, &c.ErrorMessage,
		&issued, &resolved,
	)
	if err == sql.ErrNoRows {
		return CallRecord{}, err
	}
	if err != nil {
		return CallRecord{}, fmt.Errorf("scan call: %w", err)
	}
	c.CorrelationID = wire.CorrelationID(id)
	c.IssuedAt = time.Unix(0, issued).UTC()
	if resolved.Valid {
		t := time.Unix(0, resolved.Int64).UTC()
		c.ResolvedAt = &t
	}
	return c, nil
}
