package certificate

import (
	"context"
	"crypto/x509"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/proxied/internal/adapters/out/filesystem"
	"github.com/bnema/proxied/internal/boundaries/out/mocks"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/internal/testutils"
	"github.com/bnema/proxied/pkg/certutil"
	"github.com/bnema/proxied/pkg/logger"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	acme      *mocks.MockACMEClient
	store     *filesystem.CertStore
	leRoot    string
	manual    string
	challenge string
}

func newFixture(t *testing.T, contacts ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		acme:      &mocks.MockACMEClient{},
		leRoot:    filepath.Join(root, "live"),
		manual:    filepath.Join(root, "manual"),
		challenge: filepath.Join(root, "challenge"),
	}
	f.store = filesystem.NewCertStore(filesystem.CertStoreConfig{
		LetsEncryptRoot: f.leRoot,
		ManualRoot:      f.manual,
		SelfSignedRoot:  filepath.Join(root, "selfsigned"),
		AccountKeyType:  certutil.EC256,
		DomainKeyType:   certutil.EC256,
	})
	f.svc = NewService(f.acme, f.store, Config{
		ContactEmails:    contacts,
		ChallengeDocRoot: f.challenge,
		Timeout:          time.Minute,
	}, logger.Nop())
	f.svc.nowFn = func() time.Time { return testNow }
	t.Cleanup(func() { f.acme.AssertExpectations(t) })
	return f
}

func leRoute() *domain.Route {
	return &domain.Route{
		Name:    "r1",
		Enabled: true,
		SSLType: domain.SSLLetsEncrypt,
		Domains: []domain.Domain{{Name: "www.example.com"}, {Name: "example.com"}},
	}
}

// storeChain places an existing certificate for example.com.
func (f *fixture) storeChain(t *testing.T, root string, notAfter time.Time) {
	dir := filepath.Join(root, "example.com")
	testutils.WriteFile(t, filepath.Join(dir, filesystem.FullChainFile), string(testutils.SelfSignedChain(t, notAfter, "example.com")))
	key, err := certutil.GenerateKey(certutil.EC256)
	require.NoError(t, err)
	keyPEM, err := certutil.EncodePrivateKey(key)
	require.NoError(t, err)
	testutils.WriteFile(t, filepath.Join(dir, filesystem.PrivateKeyFile), string(keyPEM))
}

func hasDeadline(ctx context.Context) bool {
	_, ok := ctx.Deadline()
	return ok
}

func csrFor(domains ...string) any {
	return mock.MatchedBy(func(der []byte) bool {
		csr, err := x509.ParseCertificateRequest(der)
		if err != nil {
			return false
		}
		return csr.Subject.CommonName == domains[0] && assert.ObjectsAreEqual(domains, csr.DNSNames)
	})
}

func (f *fixture) expectIssue(t *testing.T, orderStatus string, notAfter time.Time) *domain.ACMEOrder {
	order := &domain.ACMEOrder{URL: "https://ca/order/1", Status: orderStatus, Finalize: "https://ca/finalize/1"}
	f.acme.On("LoadAccountKey", mock.Anything).Return(nil).Once()
	f.acme.On("Register", mock.MatchedBy(hasDeadline), []string{"admin@example.com"}).
		Return(&domain.ACMEAccount{URL: "https://ca/acct/1", Status: domain.StatusValid}, nil).Once()
	f.acme.On("NewOrder", mock.Anything, []string{"example.com", "www.example.com"}).Return(order, nil).Once()
	f.acme.On("Finalize", mock.Anything, order, csrFor("example.com", "www.example.com")).
		Return(testutils.SelfSignedChain(t, notAfter, "example.com", "www.example.com"), nil).Once()
	return order
}

func TestEnsure_NoSSL(t *testing.T) {
	f := newFixture(t)
	route := leRoute()
	route.SSLType = domain.SSLNone

	result, err := f.svc.Ensure(context.Background(), route)

	require.NoError(t, err)
	assert.False(t, result.Usable)
}

func TestEnsure_IssuesMissingCertificate(t *testing.T) {
	f := newFixture(t, "admin@example.com")
	notAfter := testNow.Add(90 * 24 * time.Hour).Truncate(time.Second)
	order := f.expectIssue(t, domain.StatusPending, notAfter)
	f.acme.On("SolveChallenges", mock.Anything, order, filepath.Join(f.challenge, "example.com")).Return(nil).Once()
	route := leRoute()

	result, err := f.svc.Ensure(context.Background(), route)

	require.NoError(t, err)
	assert.True(t, result.Issued)
	assert.True(t, result.Usable)
	assert.True(t, notAfter.Equal(result.NotAfter))
	assert.True(t, notAfter.Equal(route.CertificateExpiry))

	dir := filepath.Join(f.leRoot, "example.com")
	assert.Equal(t, dir, result.Paths.Dir)
	chain := testutils.ReadFile(t, filepath.Join(dir, filesystem.FullChainFile))
	key := testutils.ReadFile(t, filepath.Join(dir, filesystem.PrivateKeyFile))
	assert.Equal(t, chain+"\n"+key, testutils.ReadFile(t, filepath.Join(dir, "example.com.pem")))
	assert.FileExists(t, filepath.Join(dir, filesystem.PublicKeyFile))
	assert.FileExists(t, filepath.Join(f.leRoot, "_account", filesystem.PrivateKeyFile))
}

func TestEnsure_ReadyOrderSkipsChallenges(t *testing.T) {
	f := newFixture(t, "admin@example.com")
	f.expectIssue(t, domain.StatusReady, testNow.Add(90*24*time.Hour))

	_, err := f.svc.Ensure(context.Background(), leRoute())

	require.NoError(t, err)
	f.acme.AssertNotCalled(t, "SolveChallenges", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsure_RenewalWindow(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		renew     bool
	}{
		{"expires in 10 days", 10 * 24 * time.Hour, true},
		{"expires in 45 days", 45 * 24 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "admin@example.com")
			f.storeChain(t, f.leRoot, testNow.Add(tt.remaining))
			if tt.renew {
				f.expectIssue(t, domain.StatusReady, testNow.Add(90*24*time.Hour))
			}

			result, err := f.svc.Ensure(context.Background(), leRoute())

			require.NoError(t, err)
			assert.True(t, result.Usable)
			assert.Equal(t, tt.renew, result.Issued)
		})
	}
}

func TestEnsure_MissingContact(t *testing.T) {
	f := newFixture(t)
	f.storeChain(t, f.leRoot, testNow.Add(5*24*time.Hour))

	result, err := f.svc.Ensure(context.Background(), leRoute())

	assert.ErrorIs(t, err, domain.ErrMissingContact)
	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
	require.NotNil(t, result)
	assert.True(t, result.Usable, "the old chain can still be served")
}

func TestEnsure_ChallengeFailure(t *testing.T) {
	f := newFixture(t, "admin@example.com")
	order := &domain.ACMEOrder{URL: "https://ca/order/1", Status: domain.StatusPending}
	f.acme.On("LoadAccountKey", mock.Anything).Return(nil)
	f.acme.On("Register", mock.Anything, mock.Anything).Return(&domain.ACMEAccount{}, nil)
	f.acme.On("NewOrder", mock.Anything, mock.Anything).Return(order, nil)
	f.acme.On("SolveChallenges", mock.Anything, order, mock.Anything).
		Return(&domain.ChallengeFailedError{Domain: "example.com", Detail: "connection refused"})

	result, err := f.svc.Ensure(context.Background(), leRoute())

	var chalErr *domain.ChallengeFailedError
	require.ErrorAs(t, err, &chalErr)
	assert.Equal(t, "example.com", chalErr.Domain)
	require.NotNil(t, result)
	assert.False(t, result.Usable)
	f.acme.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsure_AccountKeyRejected(t *testing.T) {
	f := newFixture(t, "admin@example.com")
	f.acme.On("LoadAccountKey", mock.Anything).Return(&domain.KeyError{Err: errors.New("bad key")})

	_, err := f.svc.Ensure(context.Background(), leRoute())

	var keyErr *domain.KeyError
	assert.ErrorAs(t, err, &keyErr)
}

func TestEnsure_ManualCertificate(t *testing.T) {
	f := newFixture(t)
	route := leRoute()
	route.SSLType = domain.SSLManual

	_, err := f.svc.Ensure(context.Background(), route)
	assert.ErrorIs(t, err, domain.ErrCertificateMissing)
	var ioErr *domain.IOError
	assert.ErrorAs(t, err, &ioErr)

	notAfter := testNow.Add(3 * 24 * time.Hour).Truncate(time.Second)
	f.storeChain(t, f.manual, notAfter)

	result, err := f.svc.Ensure(context.Background(), route)
	require.NoError(t, err)
	assert.True(t, result.Usable)
	assert.False(t, result.Issued, "manual certificates are never renewed")
	assert.True(t, notAfter.Equal(route.CertificateExpiry))
	assert.Equal(t, filepath.Join(f.manual, "example.com", filesystem.FullChainFile), result.Paths.FullChain)
}

func TestEnsure_NoDomains(t *testing.T) {
	f := newFixture(t)
	route := leRoute()
	route.Domains = nil

	_, err := f.svc.Ensure(context.Background(), route)

	assert.ErrorIs(t, err, domain.ErrNoDomains)
}

func TestNeedsIssuance(t *testing.T) {
	f := newFixture(t, "admin@example.com")

	assert.True(t, f.svc.NeedsIssuance(leRoute()), "no chain on disk")

	f.storeChain(t, f.leRoot, testNow.Add(60*24*time.Hour))
	assert.False(t, f.svc.NeedsIssuance(leRoute()), "current chain")

	f.storeChain(t, f.leRoot, testNow.Add(5*24*time.Hour))
	assert.True(t, f.svc.NeedsIssuance(leRoute()), "inside the renewal window")

	manual := leRoute()
	manual.SSLType = domain.SSLManual
	assert.False(t, f.svc.NeedsIssuance(manual))

	empty := leRoute()
	empty.Domains = nil
	assert.False(t, f.svc.NeedsIssuance(empty))
}
