// Package certificate decides when a route needs a certificate issued and
// drives the ACME exchange that obtains it.
package certificate

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/certutil"
	"github.com/bnema/proxied/pkg/logger"
)

// Ensure Service implements in.CertificateService.
var _ in.CertificateService = (*Service)(nil)

// DefaultRenewalWindow renews certificates 30 days before they expire.
const DefaultRenewalWindow = 30 * 24 * time.Hour

// Config holds the certificate lifecycle settings.
type Config struct {
	ContactEmails    []string
	ChallengeDocRoot string
	RenewalWindow    time.Duration
	// Timeout bounds one complete ACME exchange. Zero disables it.
	Timeout time.Duration
}

// Service implements the CertificateService interface.
type Service struct {
	acme  out.ACMEClient
	certs out.CertificateStore
	cfg   Config
	log   *logger.Logger
	nowFn func() time.Time
}

// NewService creates a new certificate service.
func NewService(acme out.ACMEClient, certs out.CertificateStore, cfg Config, log *logger.Logger) *Service {
	if cfg.RenewalWindow <= 0 {
		cfg.RenewalWindow = DefaultRenewalWindow
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		acme:  acme,
		certs: certs,
		cfg:   cfg,
		log:   log.With("component", "certificate"),
		nowFn: time.Now,
	}
}

// Ensure makes sure route has a usable certificate and records its expiry
// on route. On a failed renewal the result is returned alongside the error
// so callers can keep serving the chain already on disk.
func (s *Service) Ensure(ctx context.Context, route *domain.Route) (*domain.CertificateResult, error) {
	if !route.SSLEnabled() {
		return &domain.CertificateResult{}, nil
	}
	if !route.SSLType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSSLType, route.SSLType)
	}
	primary := route.PrimaryDomain()
	if primary == "" {
		return nil, domain.ErrNoDomains
	}
	paths, err := s.certs.Paths(route.SSLType, primary)
	if err != nil {
		return nil, err
	}

	log := s.log.With("route", route.Name, "domain", primary, "ssl_type", string(route.SSLType))
	if route.SSLType == domain.SSLLetsEncrypt {
		return s.ensureACME(ctx, log, route, primary, paths)
	}
	return s.ensureLocal(log, route, paths)
}

// NeedsIssuance reports whether Ensure would start an ACME exchange for
// route: a letsencrypt route without a readable chain, or with one inside
// the renewal window.
func (s *Service) NeedsIssuance(route *domain.Route) bool {
	if route.SSLType != domain.SSLLetsEncrypt {
		return false
	}
	primary := route.PrimaryDomain()
	if primary == "" {
		return false
	}
	paths, err := s.certs.Paths(route.SSLType, primary)
	if err != nil {
		return false
	}
	chain, err := s.certs.ReadChain(paths)
	if err != nil || chain == nil || !s.certs.Exists(paths) {
		return true
	}
	notAfter, err := certutil.NotAfter(chain)
	if err != nil {
		return true
	}
	return domain.NeedsRenewal(s.nowFn(), notAfter, s.cfg.RenewalWindow)
}

// ensureLocal checks the files of a manually provisioned or self-signed
// certificate. Nothing is fetched.
func (s *Service) ensureLocal(log *logger.Logger, route *domain.Route, paths domain.CertificatePaths) (*domain.CertificateResult, error) {
	if !s.certs.Exists(paths) {
		return nil, &domain.IOError{Op: "stat", Path: paths.FullChain, Err: domain.ErrCertificateMissing}
	}
	result := &domain.CertificateResult{Paths: paths, Usable: true}

	chain, err := s.certs.ReadChain(paths)
	if err != nil {
		return nil, err
	}
	if notAfter, err := certutil.NotAfter(chain); err == nil {
		result.NotAfter = notAfter
		route.CertificateExpiry = notAfter
	} else {
		log.Debug("could not read certificate expiry", "path", paths.FullChain, "error", err)
	}
	return result, nil
}

func (s *Service) ensureACME(ctx context.Context, log *logger.Logger, route *domain.Route, primary string, paths domain.CertificatePaths) (*domain.CertificateResult, error) {
	result := &domain.CertificateResult{Paths: paths}

	chain, err := s.certs.ReadChain(paths)
	if err != nil {
		return nil, err
	}
	if chain != nil && s.certs.Exists(paths) {
		notAfter, err := certutil.NotAfter(chain)
		if err == nil {
			result.NotAfter = notAfter
			result.Usable = true
			route.CertificateExpiry = notAfter
			if !domain.NeedsRenewal(s.nowFn(), notAfter, s.cfg.RenewalWindow) {
				log.Debug("certificate is current", "not_after", notAfter)
				return result, nil
			}
			log.Info("certificate is due for renewal", "not_after", notAfter)
		} else {
			log.Warn("stored certificate is unreadable, reissuing", "path", paths.FullChain, "error", err)
		}
	} else {
		log.Info("no certificate on disk, issuing")
	}

	if len(s.cfg.ContactEmails) == 0 {
		return result, fmt.Errorf("%w: %w", domain.ErrMissingContact, &domain.ValidationError{
			Field:   "acme.contact_email",
			Message: "required to issue letsencrypt certificates",
		})
	}

	notAfter, err := s.issue(ctx, log, route, primary, paths)
	if err != nil {
		log.Error("certificate issuance failed", "error", err)
		return result, err
	}

	result.NotAfter = notAfter
	result.Issued = true
	result.Usable = true
	route.CertificateExpiry = notAfter
	log.Info("certificate issued", "not_after", notAfter)
	return result, nil
}

// issue runs one complete ACME exchange and stores the resulting chain.
func (s *Service) issue(ctx context.Context, log *logger.Logger, route *domain.Route, primary string, paths domain.CertificatePaths) (time.Time, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	accountKey, err := s.certs.AccountKey()
	if err != nil {
		return time.Time{}, err
	}
	if err := s.acme.LoadAccountKey(accountKey); err != nil {
		return time.Time{}, err
	}
	if _, err := s.acme.Register(ctx, s.cfg.ContactEmails); err != nil {
		return time.Time{}, fmt.Errorf("register account: %w", err)
	}

	domainKey, err := s.certs.DomainKey(primary)
	if err != nil {
		return time.Time{}, err
	}

	domains := route.DomainNames()
	order, err := s.acme.NewOrder(ctx, domains)
	if err != nil {
		return time.Time{}, fmt.Errorf("create order: %w", err)
	}
	log.Debug("order created", "status", order.Status, "authorizations", len(order.Authorizations))

	if !order.Ready() {
		docRoot := filepath.Join(s.cfg.ChallengeDocRoot, primary)
		if err := s.acme.SolveChallenges(ctx, order, docRoot); err != nil {
			return time.Time{}, fmt.Errorf("solve challenges: %w", err)
		}
	}

	csr, err := certutil.CreateCSR(domainKey, domains)
	if err != nil {
		return time.Time{}, &domain.KeyError{Path: paths.PrivateKey, Err: fmt.Errorf("create csr: %w", err)}
	}
	chain, err := s.acme.Finalize(ctx, order, csr)
	if err != nil {
		return time.Time{}, fmt.Errorf("finalize order: %w", err)
	}

	notAfter, err := certutil.NotAfter(chain)
	if err != nil {
		return time.Time{}, &domain.ProtocolError{URL: order.Certificate, Err: fmt.Errorf("invalid certificate chain: %w", err)}
	}
	if err := s.certs.SaveChain(paths, chain); err != nil {
		return time.Time{}, err
	}
	return notAfter, nil
}
