package domain

import "time"

// CertificatePaths locates the files backing a route's certificate.
type CertificatePaths struct {
	Dir        string
	PrivateKey string
	PublicKey  string
	FullChain  string
	// Combined is the full chain followed by the private key.
	Combined string
}

// CertificateResult is the outcome of ensuring a route's certificate.
type CertificateResult struct {
	Paths    CertificatePaths
	NotAfter time.Time
	Issued   bool
	// Usable is true when a chain and key exist on disk, even if a renewal
	// attempt failed.
	Usable bool
}

// NeedsRenewal reports whether a certificate expiring at notAfter is inside
// the renewal window at now.
func NeedsRenewal(now, notAfter time.Time, window time.Duration) bool {
	return now.After(notAfter.Add(-window))
}
