// Package mocks provides testify mocks of the output ports.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/proxied/internal/domain"
)

// MockACMEClient is a mock implementation of out.ACMEClient
type MockACMEClient struct {
	mock.Mock
}

func (m *MockACMEClient) LoadAccountKey(keyPEM []byte) error {
	args := m.Called(keyPEM)
	return args.Error(0)
}

func (m *MockACMEClient) Register(ctx context.Context, contacts []string) (*domain.ACMEAccount, error) {
	args := m.Called(ctx, contacts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ACMEAccount), args.Error(1)
}

func (m *MockACMEClient) NewOrder(ctx context.Context, domains []string) (*domain.ACMEOrder, error) {
	args := m.Called(ctx, domains)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ACMEOrder), args.Error(1)
}

func (m *MockACMEClient) SolveChallenges(ctx context.Context, order *domain.ACMEOrder, docRoot string) error {
	args := m.Called(ctx, order, docRoot)
	return args.Error(0)
}

func (m *MockACMEClient) Finalize(ctx context.Context, order *domain.ACMEOrder, csrDER []byte) ([]byte, error) {
	args := m.Called(ctx, order, csrDER)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
