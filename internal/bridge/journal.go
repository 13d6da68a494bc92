package bridge

import (
	"context"
	"errors"

	"github.com/roach88/nbridge/internal/store"
	"github.com/roach88/nbridge/internal/wire"
)

// Journal writes are best effort: a failing journal is logged and never
// changes the outcome of a call.

func (d *Dispatcher) journalCall(call *PendingCall, msg wire.Message) {
	if d.journal == nil {
		return
	}
	err := d.journal.RecordCall(context.Background(), store.CallRecord{
		Session:       d.session,
		CorrelationID: call.ID,
		Domain:        msg.Domain,
		Mode:          string(call.Mode),
		Data:          msg.Data,
		Extra:         msg.Extra,
		State:         string(call.State()),
		IssuedAt:      call.IssuedAt,
	})
	if err != nil {
		d.log.Warn("journal write failed", "op", "call", "id", call.ID, "error", err)
	}
}

func (d *Dispatcher) journalOutcome(call *PendingCall, state CallState, result wire.Message, callErr error) {
	if d.journal == nil {
		return
	}
	out := store.Outcome{
		Session:       d.session,
		CorrelationID: call.ID,
		State:         string(state),
		Data:          result.Data,
		Extra:         result.Extra,
		At:            d.now(),
	}
	if callErr != nil {
		out.ErrorCode = string(CodeOf(callErr))
		var be *BridgeError
		if errors.As(callErr, &be) && be.Err != nil {
			out.ErrorMessage = be.Err.Error()
		} else {
			out.ErrorMessage = callErr.Error()
		}
	}

	updated, err := d.journal.RecordOutcome(context.Background(), out)
	if err != nil {
		d.log.Warn("journal write failed", "op", "outcome", "id", call.ID, "error", err)
		return
	}
	if !updated {
		d.log.Warn("journal outcome ignored: call already terminal", "id", call.ID, "state", state)
	}
}

func (d *Dispatcher) journalDrop(id wire.CorrelationID, domain, reason string) {
	if d.journal == nil {
		return
	}
	err := d.journal.RecordDrop(context.Background(), store.Drop{
		Session:       d.session,
		CorrelationID: id,
		Domain:        domain,
		Reason:        reason,
		At:            d.now(),
	})
	if err != nil {
		d.log.Warn("journal write failed", "op", "drop", "id", id, "error", err)
	}
}
