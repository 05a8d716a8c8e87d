// Package routes implements route management with input validation.
package routes

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/logger"
	"github.com/bnema/proxied/pkg/validation"
)

// Ensure Service implements in.RouteService.
var _ in.RouteService = (*Service)(nil)

// ErrPendingDeletion is returned when modifying a route marked for removal.
var ErrPendingDeletion = errors.New("route is pending deletion")

// Service implements the RouteService interface.
type Service struct {
	store out.RouteStore
	log   *logger.Logger
}

// NewService creates a new route service.
func NewService(store out.RouteStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, log: log.With("component", "routes")}
}

// Add validates input and stores a new route flagged for the next build.
// Without a name, a random v4 UUID is used.
func (s *Service) Add(ctx context.Context, input in.RouteInput) (*domain.Route, error) {
	var errs domain.ValidationErrors

	name := uuid.NewString()
	if input.Name != nil && *input.Name != "" {
		name = validation.SanitizeRouteName(*input.Name)
		if err := validation.ValidateRouteName(name); err != nil {
			errs = append(errs, &domain.ValidationError{Field: "name", Value: *input.Name, Message: err.Error()})
		} else if _, err := s.store.GetRouteByName(ctx, name); err == nil {
			errs = append(errs, &domain.ValidationError{Field: "name", Value: name, Message: "name already in use"})
		} else if !errors.Is(err, domain.ErrRouteNotFound) {
			return nil, err
		}
	}

	route := &domain.Route{
		Name:      name,
		Enabled:   true,
		HasChange: true,
	}
	if input.Domains == nil {
		errs = append(errs, &domain.ValidationError{Field: "domains", Message: domain.ErrNoDomains.Error()})
	}
	if input.Upstreams == nil {
		errs = append(errs, &domain.ValidationError{Field: "upstreams", Message: domain.ErrNoUpstreams.Error()})
	}
	fieldErrs, err := s.apply(ctx, route, input)
	if err != nil {
		return nil, err
	}
	errs = append(errs, fieldErrs...)
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	if err := s.store.CreateRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("create route: %w", err)
	}
	s.log.Info("route added", "route", route.Name, "domains", route.DomainNames())
	return route, nil
}

// Update applies the non-nil fields of input. Domains and upstreams are
// replaced wholesale when given. The name cannot change.
func (s *Service) Update(ctx context.Context, ref string, input in.RouteInput) (*domain.Route, error) {
	route, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if route.Delete {
		return nil, fmt.Errorf("%w: %s", ErrPendingDeletion, route.Name)
	}
	if input.Name != nil && *input.Name != route.Name {
		return nil, fmt.Errorf("%w: %w", domain.ErrNameImmutable,
			&domain.ValidationError{Field: "name", Value: *input.Name, Message: "name is immutable"})
	}

	errs, err := s.apply(ctx, route, input)
	if err != nil {
		return nil, err
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	route.HasChange = true
	if err := s.store.SaveRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("save route: %w", err)
	}
	s.log.Info("route updated", "route", route.Name)
	return route, nil
}

// apply validates input and copies it onto route. Store failures are
// returned separately from field problems.
func (s *Service) apply(ctx context.Context, route *domain.Route, input in.RouteInput) (domain.ValidationErrors, error) {
	var errs domain.ValidationErrors

	if input.Label != nil {
		route.Label = *input.Label
	}
	if input.Enabled != nil {
		route.Enabled = *input.Enabled
	}
	if input.ForceSSL != nil {
		route.ForceSSL = *input.ForceSSL
	}
	if input.SSLType != nil {
		if !input.SSLType.Valid() {
			errs = append(errs, &domain.ValidationError{Field: "ssl_type", Value: string(*input.SSLType), Message: domain.ErrUnknownSSLType.Error()})
		} else {
			route.SSLType = *input.SSLType
		}
	}

	if input.Domains != nil {
		domains, domainErrs, err := s.validateDomains(ctx, route.ID, input.Domains)
		if err != nil {
			return nil, err
		}
		errs = append(errs, domainErrs...)
		route.Domains = domains
	}

	if input.Upstreams != nil {
		upstreams, upstreamErrs := validateUpstreams(input.Upstreams)
		errs = append(errs, upstreamErrs...)
		route.Upstreams = upstreams
		route.MirrorFirstUpstream()
	}
	return errs, nil
}

func (s *Service) validateDomains(ctx context.Context, routeID int64, raw []string) ([]domain.Domain, domain.ValidationErrors, error) {
	var errs domain.ValidationErrors
	if len(raw) == 0 {
		return nil, domain.ValidationErrors{{Field: "domains", Message: domain.ErrNoDomains.Error()}}, nil
	}

	seen := make(map[string]bool, len(raw))
	domains := make([]domain.Domain, 0, len(raw))
	for i, r := range raw {
		field := fmt.Sprintf("domains[%d]", i)
		name := validation.NormalizeDomain(r)
		if err := validation.ValidateDomain(name); err != nil {
			errs = append(errs, &domain.ValidationError{Field: field, Value: r, Message: err.Error()})
			continue
		}
		if seen[name] {
			errs = append(errs, &domain.ValidationError{Field: field, Value: name, Message: "domain listed twice"})
			continue
		}
		seen[name] = true

		inUse, err := s.store.DomainInUse(ctx, name, routeID)
		if err != nil {
			return nil, nil, fmt.Errorf("check domain %s: %w", name, err)
		}
		if inUse {
			errs = append(errs, &domain.ValidationError{Field: field, Value: name, Message: "domain already in use by another route"})
			continue
		}
		domains = append(domains, domain.Domain{RouteID: routeID, Name: name})
	}
	return domains, errs, nil
}

func validateUpstreams(raw []in.UpstreamInput) ([]domain.Upstream, domain.ValidationErrors) {
	if len(raw) == 0 {
		return nil, domain.ValidationErrors{{Field: "upstreams", Message: domain.ErrNoUpstreams.Error()}}
	}
	var errs domain.ValidationErrors
	upstreams := make([]domain.Upstream, 0, len(raw))
	for i, u := range raw {
		if err := validation.ValidateUpstream(u.IP, u.Port); err != nil {
			errs = append(errs, &domain.ValidationError{
				Field:   fmt.Sprintf("upstreams[%d]", i),
				Value:   fmt.Sprintf("%s:%d", u.IP, u.Port),
				Message: err.Error(),
			})
			continue
		}
		upstreams = append(upstreams, domain.Upstream{IP: u.IP, Port: u.Port})
	}
	return upstreams, errs
}

// Remove marks the route for deletion by the next build pass.
func (s *Service) Remove(ctx context.Context, ref string) (*domain.Route, error) {
	route, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	route.Delete = true
	route.HasChange = true
	if err := s.store.SaveRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("save route: %w", err)
	}
	s.log.Info("route marked for deletion", "route", route.Name)
	return route, nil
}

// Rebuild flags the route so the next build pass regenerates it.
func (s *Service) Rebuild(ctx context.Context, ref string) (*domain.Route, error) {
	route, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	route.HasChange = true
	if err := s.store.SaveRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("save route: %w", err)
	}
	return route, nil
}

// Get resolves ref as a numeric id first, then as a route name.
func (s *Service) Get(ctx context.Context, ref string) (*domain.Route, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		route, err := s.store.GetRoute(ctx, id)
		if err == nil {
			return route, nil
		}
		if !errors.Is(err, domain.ErrRouteNotFound) {
			return nil, err
		}
	}
	route, err := s.store.GetRouteByName(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, ref)
	}
	return route, nil
}

func (s *Service) List(ctx context.Context, filter domain.RouteFilter) ([]*domain.Route, error) {
	return s.store.ListRoutes(ctx, filter)
}

// Count summarizes every stored route.
func (s *Service) Count(ctx context.Context) (*domain.RouteCounts, error) {
	routes, err := s.store.ListRoutes(ctx, domain.RouteFilter{})
	if err != nil {
		return nil, err
	}
	counts := &domain.RouteCounts{Total: len(routes)}
	for _, r := range routes {
		if r.HasChange {
			counts.Changed++
		}
		if r.HasError {
			counts.Errored++
		}
		if !r.Enabled {
			counts.Disabled++
		}
		if r.Delete {
			counts.Deleting++
		}
	}
	return counts, nil
}

// Reset removes every route from the store. Configuration on disk is left
// for the reconcile pass.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset routes: %w", err)
	}
	s.log.Warn("all routes removed")
	return nil
}
