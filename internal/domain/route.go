package domain

import (
	"net"
	"slices"
	"strconv"
	"time"
)

// SSLType selects where a route's certificate comes from.
type SSLType string

const (
	SSLNone        SSLType = ""
	SSLLetsEncrypt SSLType = "letsencrypt"
	SSLManual      SSLType = "manual"
	SSLSelfSigned  SSLType = "selfsigned"
)

// Valid reports whether t is one of the known SSL types.
func (t SSLType) Valid() bool {
	switch t {
	case SSLNone, SSLLetsEncrypt, SSLManual, SSLSelfSigned:
		return true
	}
	return false
}

// DefaultUpstreamPort is used when an upstream has no port set.
const DefaultUpstreamPort = 80

// Route is the unit of convergence: a set of domains proxied to a set of upstreams.
type Route struct {
	ID      int64
	Name    string
	Label   string
	Enabled bool

	// Delete marks the route for removal on the next build pass.
	Delete bool
	// Rename holds the previous name whose config directory must be migrated.
	Rename string

	SSLType  SSLType
	ForceSSL bool

	HasChange bool
	HasError  bool
	Error     string

	CertificateExpiry time.Time

	// IP and Port mirror the first upstream.
	IP   string
	Port int

	Domains   []Domain
	Upstreams []Upstream

	Added   time.Time
	Updated time.Time
}

// Domain is a bare hostname bound to a route.
type Domain struct {
	ID      int64
	RouteID int64
	Name    string
}

// Upstream is a backend address traffic is proxied to.
type Upstream struct {
	ID      int64
	RouteID int64
	IP      string
	Port    int
}

// Address returns the upstream as host:port, defaulting the port to 80.
func (u Upstream) Address() string {
	port := u.Port
	if port <= 0 {
		port = DefaultUpstreamPort
	}
	return net.JoinHostPort(u.IP, strconv.Itoa(port))
}

// DomainNames returns the route's domain names ordered by ascending length.
// Names of equal length keep their insertion order.
func (r *Route) DomainNames() []string {
	names := make([]string, 0, len(r.Domains))
	for _, d := range r.Domains {
		names = append(names, d.Name)
	}
	slices.SortStableFunc(names, func(a, b string) int {
		return len(a) - len(b)
	})
	return names
}

// PrimaryDomain returns the shortest domain name, or "" when the route has none.
func (r *Route) PrimaryDomain() string {
	names := r.DomainNames()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// SSLEnabled reports whether the route serves HTTPS.
func (r *Route) SSLEnabled() bool {
	return r.SSLType != SSLNone
}

// MirrorFirstUpstream copies the first upstream into IP and Port.
func (r *Route) MirrorFirstUpstream() {
	if len(r.Upstreams) == 0 {
		r.IP, r.Port = "", 0
		return
	}
	r.IP = r.Upstreams[0].IP
	r.Port = r.Upstreams[0].Port
}

// EffectiveUpstreams returns the upstreams to render. A route without
// upstream records falls back to its mirrored IP and port.
func (r *Route) EffectiveUpstreams() []Upstream {
	if len(r.Upstreams) > 0 {
		return r.Upstreams
	}
	if r.IP == "" {
		return nil
	}
	return []Upstream{{RouteID: r.ID, IP: r.IP, Port: r.Port}}
}

// RouteFilter narrows a route listing.
type RouteFilter struct {
	OnlyChanged    bool
	ExcludeDeleted bool
	Name           string
	// RenewBefore widens OnlyChanged to enabled letsencrypt routes whose
	// certificate expires before it, or that have none yet.
	RenewBefore time.Time
	// RetryBefore holds back errored renewals last attempted after it.
	RetryBefore time.Time
}

// DueForRenewal reports whether r has to be rebuilt to renew its
// certificate. An errored route is retried only once its last update is
// older than retryBefore.
func (r *Route) DueForRenewal(renewBefore, retryBefore time.Time) bool {
	if renewBefore.IsZero() || r.SSLType != SSLLetsEncrypt || !r.Enabled || r.Delete {
		return false
	}
	if !r.CertificateExpiry.IsZero() && !r.CertificateExpiry.Before(renewBefore) {
		return false
	}
	if r.HasError && !retryBefore.IsZero() && r.Updated.After(retryBefore) {
		return false
	}
	return true
}

// DeployedConfig is what the configuration files of a route on disk declare.
type DeployedConfig struct {
	// Present is false when the route has no http.conf.
	Present     bool
	ServerNames []string
	Upstreams   []string
	HTTPS       bool
}

// Serves reports whether the deployed server block names every domain.
func (d *DeployedConfig) Serves(domains []string) bool {
	if d == nil || !d.Present {
		return false
	}
	names := make(map[string]struct{}, len(d.ServerNames))
	for _, n := range d.ServerNames {
		names[n] = struct{}{}
	}
	for _, n := range domains {
		if _, ok := names[n]; !ok {
			return false
		}
	}
	return true
}
