package out

import (
	"context"

	"github.com/bnema/proxied/internal/domain"
)

// RouteStore persists routes together with their domains and upstreams.
type RouteStore interface {
	// ListRoutes returns routes matching the filter ordered by id.
	ListRoutes(ctx context.Context, filter domain.RouteFilter) ([]*domain.Route, error)

	// GetRoute loads a route by id. Returns domain.ErrRouteNotFound if absent.
	GetRoute(ctx context.Context, id int64) (*domain.Route, error)

	// GetRouteByName loads a route by its stable name.
	GetRouteByName(ctx context.Context, name string) (*domain.Route, error)

	// CountRoutes counts routes matching the filter.
	CountRoutes(ctx context.Context, filter domain.RouteFilter) (int, error)

	// DomainInUse reports whether name belongs to a non-deleted route other
	// than excludeRouteID.
	DomainInUse(ctx context.Context, name string, excludeRouteID int64) (bool, error)

	// CreateRoute inserts the route and its children, filling in ids.
	CreateRoute(ctx context.Context, route *domain.Route) error

	// SaveRoute updates the route row and replaces its domains and upstreams.
	SaveRoute(ctx context.Context, route *domain.Route) error

	// DeleteRoute removes the route and its children.
	DeleteRoute(ctx context.Context, id int64) error

	// Reset removes every route.
	Reset(ctx context.Context) error
}
