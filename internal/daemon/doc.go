// Package daemon defines the wallet daemon surface used by the rest of the
// application and the error taxonomy shared by its implementations.
//
// Responsibilities:
// - Declare the Daemon contract (lifecycle, queries, mutations).
// - Classify failures as start, stopped or unexpected errors.
//
// Non-responsibilities:
//   - Wallet rules; those live behind the daemon-control capability in
//     internal/daemon/ports.
//   - Transport of the remote variant.
package daemon
