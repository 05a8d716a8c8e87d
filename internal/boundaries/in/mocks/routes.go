package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/domain"
)

// MockRouteService is a mock implementation of in.RouteService
type MockRouteService struct {
	mock.Mock
}

func routeResult(args mock.Arguments) (*domain.Route, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Route), args.Error(1)
}

func (m *MockRouteService) Add(ctx context.Context, input in.RouteInput) (*domain.Route, error) {
	return routeResult(m.Called(ctx, input))
}

func (m *MockRouteService) Update(ctx context.Context, ref string, input in.RouteInput) (*domain.Route, error) {
	return routeResult(m.Called(ctx, ref, input))
}

func (m *MockRouteService) Remove(ctx context.Context, ref string) (*domain.Route, error) {
	return routeResult(m.Called(ctx, ref))
}

func (m *MockRouteService) Rebuild(ctx context.Context, ref string) (*domain.Route, error) {
	return routeResult(m.Called(ctx, ref))
}

func (m *MockRouteService) Get(ctx context.Context, ref string) (*domain.Route, error) {
	return routeResult(m.Called(ctx, ref))
}

func (m *MockRouteService) List(ctx context.Context, filter domain.RouteFilter) ([]*domain.Route, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Route), args.Error(1)
}

func (m *MockRouteService) Count(ctx context.Context) (*domain.RouteCounts, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RouteCounts), args.Error(1)
}

func (m *MockRouteService) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
