// Package lego implements the ACME port on top of go-acme/lego. It is an
// alternative to the native client for CAs the native client has not been
// exercised against.
package lego

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	legoacme "github.com/go-acme/lego/v4/acme"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/http/webroot"
	"github.com/go-acme/lego/v4/registration"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/certutil"
	"github.com/bnema/proxied/pkg/logger"
)

// Ensure Client implements out.ACMEClient.
var _ out.ACMEClient = (*Client)(nil)

// acmeUser implements the registration.User interface
type acmeUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// Client drives lego through the order steps of the ACME port. lego runs
// the order, challenge and finalize exchanges in one call, so NewOrder and
// SolveChallenges only record what Finalize needs.
type Client struct {
	directoryURL string
	httpClient   *http.Client
	log          *logger.Logger

	mu     sync.Mutex
	user   *acmeUser
	client *lego.Client
}

// NewClient creates a lego backed client for directoryURL.
func NewClient(directoryURL string, httpClient *http.Client, log *logger.Logger) *Client {
	if directoryURL == "" {
		directoryURL = lego.LEDirectoryProduction
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		directoryURL: directoryURL,
		httpClient:   httpClient,
		log:          log.With("component", "lego"),
	}
}

func (c *Client) LoadAccountKey(keyPEM []byte) error {
	key, err := certutil.ParsePrivateKey(keyPEM)
	if err != nil {
		return &domain.KeyError{Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &acmeUser{key: key}
	c.client = nil
	return nil
}

func (c *Client) Register(ctx context.Context, contacts []string) (*domain.ACMEAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil, &domain.KeyError{Err: errors.New("account key not loaded")}
	}
	if len(contacts) > 0 {
		c.user.email = strings.TrimPrefix(contacts[0], "mailto:")
	}

	cfg := lego.NewConfig(c.user)
	cfg.CADirURL = c.directoryURL
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, protocolError(c.directoryURL, err)
	}

	created := false
	reg, err := client.Registration.ResolveAccountByKey()
	if err != nil {
		c.log.Debug("no account for key, registering", "error", err)
		reg, err = client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, protocolError(c.directoryURL, err)
		}
		created = true
	}
	c.user.registration = reg
	c.client = client

	c.log.Info("acme account ready", "url", reg.URI, "created", created)
	return &domain.ACMEAccount{URL: reg.URI, Status: reg.Body.Status, Created: created}, nil
}

func (c *Client) registered() (*lego.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, &domain.ProtocolError{URL: c.directoryURL, Err: errors.New("account is not registered")}
	}
	return c.client, nil
}

// NewOrder only records the identifiers; lego creates the order in Finalize.
func (c *Client) NewOrder(_ context.Context, domains []string) (*domain.ACMEOrder, error) {
	if len(domains) == 0 {
		return nil, domain.ErrNoDomains
	}
	if _, err := c.registered(); err != nil {
		return nil, err
	}
	return &domain.ACMEOrder{
		Status:      domain.StatusPending,
		Identifiers: append([]string(nil), domains...),
	}, nil
}

// SolveChallenges installs a webroot HTTP-01 provider publishing below docRoot.
func (c *Client) SolveChallenges(_ context.Context, order *domain.ACMEOrder, docRoot string) error {
	client, err := c.registered()
	if err != nil {
		return err
	}
	provider, err := webroot.NewHTTPProvider(docRoot)
	if err != nil {
		return &domain.IOError{Op: "webroot", Path: docRoot, Err: err}
	}
	if err := client.Challenge.SetHTTP01Provider(provider); err != nil {
		return fmt.Errorf("failed to set http-01 provider: %w", err)
	}
	c.log.Debug("webroot provider installed", "root", docRoot, "domains", order.Identifiers)
	return nil
}

// Finalize obtains the certificate for the CSR and returns the bundled chain.
func (c *Client) Finalize(ctx context.Context, order *domain.ACMEOrder, csrDER []byte) ([]byte, error) {
	client, err := c.registered()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		return nil, &domain.KeyError{Err: fmt.Errorf("invalid csr: %w", err)}
	}

	res, err := client.Certificate.ObtainForCSR(certificate.ObtainForCSRRequest{CSR: csr, Bundle: true})
	if err != nil {
		return nil, protocolError(c.directoryURL, err)
	}
	order.URL = res.CertURL
	order.Certificate = res.CertURL
	order.Status = domain.StatusValid
	return res.Certificate, nil
}

// protocolError keeps lego's problem document fields when present.
func protocolError(url string, err error) error {
	var problem *legoacme.ProblemDetails
	if !errors.As(err, &problem) {
		return &domain.ProtocolError{URL: url, Err: err}
	}
	perr := &domain.ProtocolError{
		URL:    problem.URL,
		Status: problem.HTTPStatus,
		Type:   problem.Type,
		Detail: problem.Detail,
	}
	if perr.URL == "" {
		perr.URL = url
	}
	for _, sp := range problem.SubProblems {
		perr.Subproblems = append(perr.Subproblems, domain.Subproblem{
			Type:       sp.Type,
			Detail:     sp.Detail,
			Identifier: sp.Identifier.Value,
		})
	}
	return perr
}
