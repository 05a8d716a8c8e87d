package out

import (
	"context"

	"github.com/bnema/proxied/internal/domain"
)

// ACMEClient obtains certificates from an ACME v2 certificate authority.
type ACMEClient interface {
	// LoadAccountKey parses the account key and derives the JOSE header.
	LoadAccountKey(keyPEM []byte) error

	// Register creates or retrieves the account bound to the loaded key.
	Register(ctx context.Context, contacts []string) (*domain.ACMEAccount, error)

	// NewOrder requests a certificate covering domains.
	NewOrder(ctx context.Context, domains []string) (*domain.ACMEOrder, error)

	// SolveChallenges satisfies every pending authorization of the order
	// with HTTP-01, publishing tokens below docRoot.
	SolveChallenges(ctx context.Context, order *domain.ACMEOrder, docRoot string) error

	// Finalize submits the DER encoded CSR and returns the PEM chain.
	Finalize(ctx context.Context, order *domain.ACMEOrder, csrDER []byte) ([]byte, error)
}
