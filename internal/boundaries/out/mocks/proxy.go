package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
)

// MockProxyProcess is a mock implementation of out.ProxyProcess
type MockProxyProcess struct {
	mock.Mock
}

func (m *MockProxyProcess) Test(ctx context.Context) (*out.ExecResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*out.ExecResult), args.Error(1)
}

func (m *MockProxyProcess) Reload(ctx context.Context) (*out.ExecResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*out.ExecResult), args.Error(1)
}

func (m *MockProxyProcess) Version(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockProxyStatusReader is a mock implementation of out.ProxyStatusReader
type MockProxyStatusReader struct {
	mock.Mock
}

func (m *MockProxyStatusReader) ReadStatus(ctx context.Context) (*domain.ProxyStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProxyStatus), args.Error(1)
}
