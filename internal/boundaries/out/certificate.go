package out

import (
	"crypto"

	"github.com/bnema/proxied/internal/domain"
)

// CertificateStore persists account and domain key material.
type CertificateStore interface {
	// Paths returns where a certificate of sslType for primary lives.
	Paths(sslType domain.SSLType, primary string) (domain.CertificatePaths, error)

	// AccountKey loads the account key, generating it on first use.
	// The returned PEM is what the ACME client loads.
	AccountKey() ([]byte, error)

	// DomainKey loads the domain private key, generating it on first use.
	DomainKey(primary string) (crypto.Signer, error)

	// ReadChain returns the stored full chain, or nil if absent.
	ReadChain(paths domain.CertificatePaths) ([]byte, error)

	// SaveChain writes fullchain.pem and the combined chain-and-key file.
	SaveChain(paths domain.CertificatePaths, chain []byte) error

	// Exists reports whether both the chain and the private key are present.
	Exists(paths domain.CertificatePaths) bool
}
