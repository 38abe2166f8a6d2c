// Package sched implements the weft cooperative strand scheduler.
//
// A strand is a logical thread: a goroutine that only ever runs while it
// holds the scheduler's baton. The scheduler resumes exactly one strand
// at a time and waits for it to yield, park, or finish before resuming
// the next. Combined with a FIFO run queue, this makes interleaving a
// pure function of program order - no goroutine races, no wall-clock
// dependence, identical traces on every run.
//
// ARCHITECTURE:
//
// Single-Runner Baton Passing:
// Run() dequeues the next ready strand, hands it the baton over its
// resume channel, and blocks on the shared bell until the strand hands
// the baton back. Strand-local state (including the dispatcher's relay
// slot) therefore needs no locking: only the owning strand touches it,
// and only while running.
//
// Scheduling Flow:
//  1. Spawn() registers a strand and enqueues it ready-to-run
//  2. Run() resumes the head of the run queue
//  3. The strand runs until Yield() (requeued at the tail), Park()
//     (held until Unpark()), or its body returns (retired)
//  4. Run() returns when no live strands remain
//
// Termination is guaranteed by two mechanisms: a step quota bounding the
// total number of resumes per run, and deadlock detection - if live
// strands remain but every one of them is parked, nothing can ever run
// again and Run() fails with DEADLOCK_DETECTED rather than hanging.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every resume is stamped with a monotonic seq from Clock.Next().
// NEVER use wall-clock timestamps for ordering.
//
// Deterministic Scheduling:
// Strands resume in strict FIFO order. Unparked strands rejoin the tail
// of the queue in the order they were unparked. No randomness, no
// concurrency, no non-determinism.
package sched
