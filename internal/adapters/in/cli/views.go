package cli

import (
	"time"

	"github.com/bnema/proxied/internal/domain"
)

// routeView is the machine-readable form of a route in listings.
type routeView struct {
	ID                int64      `json:"id" yaml:"id"`
	Name              string     `json:"name" yaml:"name"`
	Label             string     `json:"label,omitempty" yaml:"label,omitempty"`
	Enabled           bool       `json:"enabled" yaml:"enabled"`
	State             string     `json:"state" yaml:"state"`
	SSLType           string     `json:"ssl_type,omitempty" yaml:"ssl_type,omitempty"`
	ForceSSL          bool       `json:"force_ssl" yaml:"force_ssl"`
	Domains           []string   `json:"domains" yaml:"domains"`
	Upstreams         []string   `json:"upstreams" yaml:"upstreams"`
	Error             string     `json:"error,omitempty" yaml:"error,omitempty"`
	CertificateExpiry *time.Time `json:"certificate_expiry,omitempty" yaml:"certificate_expiry,omitempty"`
}

func routeViews(routes []*domain.Route) []routeView {
	views := make([]routeView, 0, len(routes))
	for _, r := range routes {
		v := routeView{
			ID:        r.ID,
			Name:      r.Name,
			Label:     r.Label,
			Enabled:   r.Enabled,
			State:     routeState(r),
			SSLType:   string(r.SSLType),
			ForceSSL:  r.ForceSSL,
			Domains:   r.DomainNames(),
			Upstreams: upstreamAddresses(r),
		}
		if r.HasError {
			v.Error = r.Error
		}
		if !r.CertificateExpiry.IsZero() {
			exp := r.CertificateExpiry
			v.CertificateExpiry = &exp
		}
		views = append(views, v)
	}
	return views
}
