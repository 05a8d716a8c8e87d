// Package mocks provides testify mocks of the input ports.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/proxied/internal/domain"
)

// MockCertificateService is a mock implementation of in.CertificateService
type MockCertificateService struct {
	mock.Mock
}

func (m *MockCertificateService) Ensure(ctx context.Context, route *domain.Route) (*domain.CertificateResult, error) {
	args := m.Called(ctx, route)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CertificateResult), args.Error(1)
}

func (m *MockCertificateService) NeedsIssuance(route *domain.Route) bool {
	args := m.Called(route)
	return args.Bool(0)
}

// MockBuildService is a mock implementation of in.BuildService
type MockBuildService struct {
	mock.Mock
}

func (m *MockBuildService) Build(ctx context.Context) (*domain.BuildReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BuildReport), args.Error(1)
}

// MockReconcileService is a mock implementation of in.ReconcileService
type MockReconcileService struct {
	mock.Mock
}

func (m *MockReconcileService) Reconcile(ctx context.Context) (*domain.ReconcileReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReconcileReport), args.Error(1)
}

// MockStatusService is a mock implementation of in.StatusService
type MockStatusService struct {
	mock.Mock
}

func (m *MockStatusService) Status(ctx context.Context) (*domain.ProxyStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProxyStatus), args.Error(1)
}

// MockSetupService is a mock implementation of in.SetupService
type MockSetupService struct {
	mock.Mock
}

func (m *MockSetupService) Run(ctx context.Context) (*domain.SetupReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SetupReport), args.Error(1)
}
