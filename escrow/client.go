// Package escrow defines the vault's contract with the remote key-escrow
// server: registering K_s at init and fetching it back at open. The wire
// protocol and TOTP verification are left to the transport implementation;
// this package models the contract as a single synchronous interface so
// the vault core stays testable without a network.
package escrow

import "context"

// AuthSetup carries whatever second-factor setup material Register hands
// the server alongside the freshly wrapped K_s. Concrete transports decide
// how to encode it; the core only ever passes it through.
type AuthSetup struct {
	TOTPSecret string
}

// Client is the escrow server contract used by vault initialization and
// open. UID identifies the client; ks is the envelope-encrypted K_e,
// referred to elsewhere as K_s.
type Client interface {
	// Register performs the one-shot registration at init: it stores ks
	// under uid, guarded by the second factor described in setup.
	Register(ctx context.Context, uid [16]byte, setup AuthSetup, ks []byte) error

	// Fetch authenticates uid with totpToken and returns the previously
	// registered ks.
	Fetch(ctx context.Context, uid [16]byte, totpToken string) ([]byte, error)
}
