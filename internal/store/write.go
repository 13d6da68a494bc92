package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/nbridge/internal/wire"
)

// CallRecord is one journaled call.
type CallRecord struct {
	Session       string             `json:"session"`
	CorrelationID wire.CorrelationID `json:"correlation_id"`
	Domain        string             `json:"domain"`
	Mode          string             `json:"mode"`
	Data          string             `json:"data"`
	Extra         string             `json:"extra"`
	State         string             `json:"state"`
	ResponseData  string             `json:"response_data,omitempty"`
	ResponseExtra string             `json:"response_extra,omitempty"`
	ErrorCode     string             `json:"error_code,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	IssuedAt      time.Time          `json:"issued_at"`
	ResolvedAt    *time.Time         `json:"resolved_at,omitempty"`
}

// Outcome is the terminal result of a call.
type Outcome struct {
	Session       string
	CorrelationID wire.CorrelationID
	State         string
	Data          string
	Extra         string
	ErrorCode     string
	ErrorMessage  string
	At            time.Time
}

// Drop is a discarded callback or late result.
type Drop struct {
	Session       string             `json:"session"`
	CorrelationID wire.CorrelationID `json:"correlation_id"`
	Domain        string             `json:"domain"`
	Reason        string             `json:"reason"`
	At            time.Time          `json:"recorded_at"`
}

// awaitingState is the only state an outcome may replace.
const awaitingState = "awaiting"

// RecordCall inserts a call. Uses ON CONFLICT DO NOTHING for idempotency -
// writing the same (session, correlation_id) twice keeps the first row.
func (s *Store) RecordCall(ctx context.Context, c CallRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls
		(session, correlation_id, domain, mode, data, extra, state, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session, correlation_id) DO NOTHING
	`,
		c.Session,
		int64(c.CorrelationID),
		c.Domain,
		c.Mode,
		c.Data,
		c.Extra,
		c.State,
		c.IssuedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// RecordOutcome applies the terminal state of a call. It reports false when
// the call is unknown or already terminal; the row is then left unchanged.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE calls
		SET state = ?, response_data = ?, response_extra = ?,
		    error_code = ?, error_message = ?, resolved_at = ?
		WHERE session = ? AND correlation_id = ? AND state = ?
	`,
		o.State,
		o.Data,
		o.Extra,
		o.ErrorCode,
		o.ErrorMessage,
		o.At.UnixNano(),
		o.Session,
		int64(o.CorrelationID),
		awaitingState,
	)
	if err != nil {
		return false, fmt.Errorf("record outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record outcome: %w", err)
	}
	return n == 1, nil
}

// RecordDrop appends a dropped callback.
func (s *Store) RecordDrop(ctx context.Context, d Drop) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drops (session, correlation_id, domain, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		d.Session,
		int64(d.CorrelationID),
		d.Domain,
		d.Reason,
		d.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record drop: %w", err)
	}
	return nil
}
