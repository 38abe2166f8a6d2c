package dispatch

import (
	"strconv"

	"github.com/weftrun/weft/internal/future"
	"github.com/weftrun/weft/internal/sched"
	"github.com/weftrun/weft/internal/trace"
)

// relayKey is the strand-local storage key for the relay slot.
// Unexported type per the context.Context key convention: nothing
// outside this package can collide with or reach the slot directly.
type relayKey struct{}

// relaySlot is the single-slot handoff cell. It exists only between a
// relay-path dispatch opening it and the same dispatch closing it; a
// strand with no dispatch in flight has no slot at all.
//
// States: absent -> open-empty -> open-filled -> absent.
// The owning strand is the only toucher, so no locking.
type relaySlot struct {
	handle    *future.Handle
	published bool
	callable  string // callable being dispatched, for diagnostics
}

// openRelay transitions the calling strand's relay from absent to
// open-empty. Fails with RELAY_REENTRANCY if a slot already exists -
// the outer dispatch owns it, and its state is left untouched.
func openRelay(st *sched.Strand, callable string) error {
	if v, ok := st.Local(relayKey{}); ok {
		outer := v.(*relaySlot)
		return &ProtocolError{
			Code:     ErrCodeRelayReentrancy,
			Message:  "relay already open for callable " + quoteName(outer.callable),
			Strand:   st.Name(),
			Callable: callable,
		}
	}
	st.SetLocal(relayKey{}, &relaySlot{callable: callable})
	st.Record(trace.KindRelayOpen, map[string]string{"callable": callable})
	return nil
}

// Publish hands a result handle to the calling strand's open relay.
// Called by relay-capable callables while running on the relay path.
//
// Fails with RELAY_NOT_OPEN when no relay-path dispatch is in flight on
// this strand, and with RELAY_ALREADY_PUBLISHED on a second publish -
// the first handle stays in the slot.
func Publish(st *sched.Strand, h *future.Handle) error {
	v, ok := st.Local(relayKey{})
	if !ok {
		return &ProtocolError{
			Code:    ErrCodeRelayNotOpen,
			Message: "no relay-path invocation in flight on this strand",
			Strand:  st.Name(),
		}
	}
	slot := v.(*relaySlot)

	if h == nil {
		return &ProtocolError{
			Code:     ErrCodeNilHandle,
			Message:  "published handle is nil",
			Strand:   st.Name(),
			Callable: slot.callable,
		}
	}
	if slot.published {
		return &ProtocolError{
			Code:     ErrCodeRelayAlreadyPublished,
			Message:  "a handle was already published to this relay",
			Strand:   st.Name(),
			Callable: slot.callable,
		}
	}

	slot.handle = h
	slot.published = true
	st.Record(trace.KindRelayPublish, map[string]string{
		"callable": slot.callable,
		"ready":    strconv.FormatBool(h.Ready()),
	})
	return nil
}

// RelayOpen reports whether a relay-path invocation is in flight on the
// calling strand. Callables use it to serve both paths: publish when
// open, return the value when not.
func RelayOpen(st *sched.Strand) bool {
	_, ok := st.Local(relayKey{})
	return ok
}

// consumeAndClose takes the published handle and removes the slot.
// The slot is removed on BOTH outcomes - a dispatch that failed to
// produce a handle must still leave the strand clean.
func consumeAndClose(st *sched.Strand, callable string) (*future.Handle, error) {
	v, ok := st.Local(relayKey{})
	st.ClearLocal(relayKey{})

	if !ok {
		// Unreachable from the dispatcher, which only consumes a relay
		// it opened. Kept for state-machine honesty.
		return nil, &ProtocolError{
			Code:     ErrCodeRelayNotOpen,
			Message:  "consume on a strand with no open relay",
			Strand:   st.Name(),
			Callable: callable,
		}
	}

	slot := v.(*relaySlot)
	if !slot.published {
		st.Record(trace.KindRelayClose, map[string]string{
			"callable": callable,
			"reason":   "unpublished",
		})
		return nil, &ProtocolError{
			Code:     ErrCodeResultNotPublished,
			Message:  "callable completed without publishing a result",
			Strand:   st.Name(),
			Callable: callable,
		}
	}

	st.Record(trace.KindRelayConsume, map[string]string{"callable": callable})
	return slot.handle, nil
}

// discardRelay removes the slot without reading it. Used on the
// callable-failure path, where a partially published handle is
// deliberately dropped: the thrown failure wins.
func discardRelay(st *sched.Strand, callable, reason string) {
	st.ClearLocal(relayKey{})
	st.Record(trace.KindRelayClose, map[string]string{
		"callable": callable,
		"reason":   reason,
	})
}

func quoteName(name string) string {
	if name == "" {
		return `""`
	}
	return `"` + name + `"`
}
