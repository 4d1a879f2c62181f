// Package nftexec wraps the nft(8) subprocess: syntax checking, elevated
// apply, kernel snapshots, snapshot restore, and the emergency permissive
// ruleset. All operations take a context and are capped by a wall-clock
// timeout so a stuck authentication dialog cannot hang the caller.
package nftexec

import "context"

// Runner is the subprocess surface the apply controller drives. The real
// implementation shells out to nft; tests substitute a stub.
type Runner interface {
	// Check feeds the wire document to `nft --json --check -f -` without
	// elevation and returns a validation error with parsed nft messages.
	Check(ctx context.Context, wire []byte) error

	// Apply atomically loads the wire document into the kernel via an
	// elevated `nft --json -f -`.
	Apply(ctx context.Context, wire []byte) error

	// Snapshot captures the current kernel state of the managed table as
	// a JSON blob sufficient to restore it exactly. A missing table
	// yields an empty snapshot whose restore removes the table again.
	Snapshot(ctx context.Context) ([]byte, error)

	// Restore atomically replaces the managed table with the contents of
	// a snapshot blob previously returned by Snapshot.
	Restore(ctx context.Context, snapshot []byte) error

	// EmergencyFallback applies a built-in permissive ruleset that keeps
	// loopback and already-established connections working. Last resort
	// when both apply and restore have failed.
	EmergencyFallback(ctx context.Context) error
}
