package testutils

import (
	"context"
	"sort"
	"sync"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
)

// MemoryRouteStore is an in-memory out.RouteStore.
type MemoryRouteStore struct {
	mu     sync.Mutex
	routes map[int64]*domain.Route
	nextID int64
	// Saves counts SaveRoute calls per route name.
	Saves map[string]int
}

var _ out.RouteStore = (*MemoryRouteStore)(nil)

// NewMemoryRouteStore creates a store seeded with routes.
func NewMemoryRouteStore(routes ...*domain.Route) *MemoryRouteStore {
	s := &MemoryRouteStore{routes: make(map[int64]*domain.Route), Saves: make(map[string]int)}
	for _, r := range routes {
		_ = s.CreateRoute(context.Background(), r)
	}
	return s
}

func cloneRoute(r *domain.Route) *domain.Route {
	cp := *r
	cp.Domains = append([]domain.Domain(nil), r.Domains...)
	cp.Upstreams = append([]domain.Upstream(nil), r.Upstreams...)
	return &cp
}

func matches(r *domain.Route, f domain.RouteFilter) bool {
	if f.OnlyChanged && !r.HasChange && !r.DueForRenewal(f.RenewBefore, f.RetryBefore) {
		return false
	}
	if f.ExcludeDeleted && r.Delete {
		return false
	}
	if f.Name != "" && r.Name != f.Name {
		return false
	}
	return true
}

func (s *MemoryRouteStore) ListRoutes(_ context.Context, filter domain.RouteFilter) ([]*domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Route
	for _, r := range s.routes {
		if matches(r, filter) {
			result = append(result, cloneRoute(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryRouteStore) GetRoute(_ context.Context, id int64) (*domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[id]
	if !ok {
		return nil, domain.ErrRouteNotFound
	}
	return cloneRoute(r), nil
}

func (s *MemoryRouteStore) GetRouteByName(_ context.Context, name string) (*domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.routes {
		if r.Name == name {
			return cloneRoute(r), nil
		}
	}
	return nil, domain.ErrRouteNotFound
}

func (s *MemoryRouteStore) CountRoutes(ctx context.Context, filter domain.RouteFilter) (int, error) {
	routes, err := s.ListRoutes(ctx, filter)
	return len(routes), err
}

func (s *MemoryRouteStore) DomainInUse(_ context.Context, name string, excludeRouteID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.routes {
		if r.Delete || r.ID == excludeRouteID {
			continue
		}
		for _, d := range r.Domains {
			if d.Name == name {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *MemoryRouteStore) CreateRoute(_ context.Context, route *domain.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	route.ID = s.nextID
	for i := range route.Domains {
		route.Domains[i].RouteID = route.ID
	}
	for i := range route.Upstreams {
		route.Upstreams[i].RouteID = route.ID
	}
	s.routes[route.ID] = cloneRoute(route)
	return nil
}

func (s *MemoryRouteStore) SaveRoute(_ context.Context, route *domain.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[route.ID]; !ok {
		return domain.ErrRouteNotFound
	}
	s.routes[route.ID] = cloneRoute(route)
	s.Saves[route.Name]++
	return nil
}

func (s *MemoryRouteStore) DeleteRoute(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[id]; !ok {
		return domain.ErrRouteNotFound
	}
	delete(s.routes, id)
	return nil
}

func (s *MemoryRouteStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = make(map[int64]*domain.Route)
	return nil
}

// Route returns a copy of the stored route named name, or nil.
func (s *MemoryRouteStore) Route(name string) *domain.Route {
	r, err := s.GetRouteByName(context.Background(), name)
	if err != nil {
		return nil
	}
	return r
}
