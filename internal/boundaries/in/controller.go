// Package in defines input ports (interfaces) driven by the CLI, the
// scheduler and the status endpoint.
package in

import (
	"context"

	"github.com/bnema/proxied/internal/domain"
)

// BuildService regenerates configuration for changed routes.
type BuildService interface {
	Build(ctx context.Context) (*domain.BuildReport, error)
}

// ReconcileService prunes filesystem state no route declares.
type ReconcileService interface {
	Reconcile(ctx context.Context) (*domain.ReconcileReport, error)
}

// CertificateService ensures a route's certificate is present and current.
type CertificateService interface {
	Ensure(ctx context.Context, route *domain.Route) (*domain.CertificateResult, error)
	// NeedsIssuance reports whether Ensure would contact the CA.
	NeedsIssuance(route *domain.Route) bool
}

// SetupService bootstraps the proxy's include files and directories.
type SetupService interface {
	Run(ctx context.Context) (*domain.SetupReport, error)
}

// StatusService reports live proxy counters.
type StatusService interface {
	Status(ctx context.Context) (*domain.ProxyStatus, error)
}
