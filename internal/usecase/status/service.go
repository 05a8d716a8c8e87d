// Package status exposes live proxy counters.
package status

import (
	"context"
	"fmt"

	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
)

// Ensure Service implements in.StatusService.
var _ in.StatusService = (*Service)(nil)

// Service implements the StatusService interface.
type Service struct {
	reader out.ProxyStatusReader
}

// NewService creates a new status service.
func NewService(reader out.ProxyStatusReader) *Service {
	return &Service{reader: reader}
}

func (s *Service) Status(ctx context.Context) (*domain.ProxyStatus, error) {
	st, err := s.reader.ReadStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("read proxy status: %w", err)
	}
	return st, nil
}
