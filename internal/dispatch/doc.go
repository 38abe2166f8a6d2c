// Package dispatch implements the weft invocation dispatcher: the entry
// point that routes a callable either through the async-result relay or
// onto a freshly spawned strand.
//
// DISPATCH DECISION:
//
// A callable is async-eligible when all three hold:
//  1. its descriptor names a receiver,
//  2. the receiver's type carries the relay capability (RelayCapable),
//  3. the call is interface-dispatched (ViaInterface).
//
// Anything else - free function, direct method call, untagged receiver -
// takes the spawn path. Eligibility can only downgrade: a descriptor the
// classifier cannot make sense of is treated as not eligible, never as
// an error.
//
// THE RELAY PROTOCOL:
//
// The relay is a single-slot, strand-scoped handoff cell:
//
//	dispatcher            callable
//	----------            --------
//	open relay
//	run in place  ----->  ... does its work ...
//	                      Publish(strand, handle)
//	consume+close <-----  returns (value ignored)
//	return handle
//
// The callable's ordinary return value is IGNORED on the relay path;
// the published handle is the result, returned to the dispatch caller
// as-is. A callable that checks RelayOpen can serve both paths: publish
// when the relay is open, return the value when it is not.
//
// Exactly one dispatch may have the relay open per strand at a time -
// opening twice is RELAY_REENTRANCY. Publishing without an open relay
// is RELAY_NOT_OPEN. Publishing twice is RELAY_ALREADY_PUBLISHED (the
// first handle wins). An eligible callable that returns without
// publishing is RESULT_NOT_PUBLISHED. These are programmer errors,
// returned from the Invoke call that detected them.
//
// CLEANUP INVARIANT:
//
// The relay is closed on EVERY dispatch exit path - published,
// unpublished, callable failure, protocol error. A failed dispatch
// never leaves the strand's relay open; the next dispatch on the same
// strand starts clean.
//
// FAILURE CAPTURE:
//
// A callable that returns an error or panics has its failure normalized
// and captured into the returned handle. Execution failure is an
// expected outcome, never a dispatch error: on the relay path a thrown
// failure takes priority over a partially published result, and on the
// spawn path the failure settles the handle the caller already holds.
package dispatch
