// Package embedded implements daemon.Daemon over a wallet daemon running in
// the same process.
//
// The session returned by the launcher is kept in a single mutex-guarded slot.
// Start fills the slot once; Stop and a failed liveness probe empty it for
// good. Every query and mutation borrows the session through Command, so at
// most one call reaches the daemon-control capability at a time, in lock
// acquisition order.
//
// A panic raised while the slot is held never reaches the caller: the holder
// gets an unexpected error and the slot is poisoned, so later callers get the
// same error rather than a session in unknown state.
package embedded
