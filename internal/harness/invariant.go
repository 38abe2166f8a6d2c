package harness

import (
	"fmt"
	"sort"

	"github.com/weftrun/weft/internal/trace"
)

// VerifyTraceInvariants checks the structural properties every recorded
// trace must satisfy, independent of what the scenario asserts.
//
// Positional invariants hold for any trace, partial or complete:
//   - seq strictly increasing
//   - relay opens never nest on a strand
//   - relay publish, consume, and close only happen on a strand with an
//     open relay
//
// Completeness invariants apply only when the run finished cleanly
// (complete true), because a shutdown mid-dispatch can strand an open
// relay or leave a spawned callable unrun:
//   - every relay_open is balanced by exactly one relay_consume or
//     relay_close
//   - every dispatch resolves: consumed, settled, or rejected
func VerifyTraceInvariants(events []trace.Event, complete bool) []error {
	var errs []error

	var lastSeq int64
	openRelays := make(map[int64]int64) // strand ID -> seq of its unbalanced relay_open
	var dispatches, consumes, settles, rejections int

	for _, e := range events {
		if e.Seq <= lastSeq {
			errs = append(errs, fmt.Errorf(
				"seq %d follows seq %d: seq must be strictly increasing", e.Seq, lastSeq))
		}
		lastSeq = e.Seq

		switch e.Kind {
		case trace.KindDispatch:
			dispatches++
		case trace.KindDispatchError:
			rejections++
		case trace.KindHandleSettle:
			settles++
		case trace.KindRelayOpen:
			if openSeq, open := openRelays[e.Strand]; open {
				errs = append(errs, fmt.Errorf(
					"seq %d: relay_open on strand %d while the open from seq %d is unclosed",
					e.Seq, e.Strand, openSeq))
			}
			openRelays[e.Strand] = e.Seq
		case trace.KindRelayPublish:
			if _, open := openRelays[e.Strand]; !open {
				errs = append(errs, fmt.Errorf(
					"seq %d: relay_publish on strand %d with no open relay", e.Seq, e.Strand))
			}
		case trace.KindRelayConsume:
			consumes++
			if _, open := openRelays[e.Strand]; !open {
				errs = append(errs, fmt.Errorf(
					"seq %d: relay_consume on strand %d with no open relay", e.Seq, e.Strand))
			}
			delete(openRelays, e.Strand)
		case trace.KindRelayClose:
			if _, open := openRelays[e.Strand]; !open {
				errs = append(errs, fmt.Errorf(
					"seq %d: relay_close on strand %d with no open relay", e.Seq, e.Strand))
			}
			delete(openRelays, e.Strand)
		}
	}

	if !complete {
		return errs
	}

	// Sorted for deterministic error output
	strands := make([]int64, 0, len(openRelays))
	for strand := range openRelays {
		strands = append(strands, strand)
	}
	sort.Slice(strands, func(i, j int) bool { return strands[i] < strands[j] })
	for _, strand := range strands {
		errs = append(errs, fmt.Errorf(
			"relay opened at seq %d on strand %d was never closed", openRelays[strand], strand))
	}

	if dispatches != consumes+settles+rejections {
		errs = append(errs, fmt.Errorf(
			"dispatch pairing broken: %d dispatches vs %d consumed + %d settled + %d rejected",
			dispatches, consumes, settles, rejections))
	}

	return errs
}
