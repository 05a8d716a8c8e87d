package in

import (
	"context"

	"github.com/bnema/proxied/internal/domain"
)

// UpstreamInput is an upstream as supplied by a caller.
type UpstreamInput struct {
	IP   string `yaml:"ip" json:"ip"`
	Port int    `yaml:"port" json:"port"`
}

// RouteInput carries fields for creating or updating a route. Nil fields
// are left untouched on update.
type RouteInput struct {
	Name      *string         `yaml:"name,omitempty" json:"name,omitempty"`
	Label     *string         `yaml:"label,omitempty" json:"label,omitempty"`
	Enabled   *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	SSLType   *domain.SSLType `yaml:"ssl_type,omitempty" json:"ssl_type,omitempty"`
	ForceSSL  *bool           `yaml:"force_ssl,omitempty" json:"force_ssl,omitempty"`
	Domains   []string        `yaml:"domains,omitempty" json:"domains,omitempty"`
	Upstreams []UpstreamInput `yaml:"upstreams,omitempty" json:"upstreams,omitempty"`
}

// RouteService manages route definitions.
type RouteService interface {
	Add(ctx context.Context, input RouteInput) (*domain.Route, error)
	Update(ctx context.Context, ref string, input RouteInput) (*domain.Route, error)
	Remove(ctx context.Context, ref string) (*domain.Route, error)
	Rebuild(ctx context.Context, ref string) (*domain.Route, error)
	Get(ctx context.Context, ref string) (*domain.Route, error)
	List(ctx context.Context, filter domain.RouteFilter) ([]*domain.Route, error)
	Count(ctx context.Context) (*domain.RouteCounts, error)
	Reset(ctx context.Context) error
}
