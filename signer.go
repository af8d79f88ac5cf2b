package acpflow

import "context"

// Signer is the wallet contract used to sign delivery receipts and
// settlement requests. Implementations are supplied by an external
// key-management component; the engine never holds key material.
type Signer interface {
	// Sign returns a signature over the given payload.
	Sign(ctx context.Context, payload []byte) (string, error)

	// Address returns the signing wallet's address.
	Address(ctx context.Context) (string, error)
}
