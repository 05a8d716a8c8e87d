package domain

// ACME resource statuses.
const (
	StatusPending     = "pending"
	StatusReady       = "ready"
	StatusProcessing  = "processing"
	StatusValid       = "valid"
	StatusInvalid     = "invalid"
	StatusDeactivated = "deactivated"
	StatusExpired     = "expired"
	StatusRevoked     = "revoked"
)

// ACMEAccount is a registered account on the CA.
type ACMEAccount struct {
	URL     string
	Status  string
	Created bool
}

// ACMEOrder is a request for a certificate covering a set of identifiers.
type ACMEOrder struct {
	URL            string
	Status         string
	Identifiers    []string
	Authorizations []string
	Finalize       string
	Certificate    string
}

// Ready reports whether all authorizations are already satisfied.
func (o *ACMEOrder) Ready() bool {
	return o.Status == StatusReady
}
