// Package app wires adapters and use cases together and runs the daemon.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/bnema/proxied/internal/adapters/out/acme"
	"github.com/bnema/proxied/internal/adapters/out/filesystem"
	"github.com/bnema/proxied/internal/adapters/out/lego"
	"github.com/bnema/proxied/internal/adapters/out/lock"
	"github.com/bnema/proxied/internal/adapters/out/nginx"
	"github.com/bnema/proxied/internal/adapters/out/process"
	"github.com/bnema/proxied/internal/adapters/out/sqlite"
	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/config"
	"github.com/bnema/proxied/internal/usecase/build"
	"github.com/bnema/proxied/internal/usecase/certificate"
	"github.com/bnema/proxied/internal/usecase/reconcile"
	"github.com/bnema/proxied/internal/usecase/routes"
	"github.com/bnema/proxied/internal/usecase/setup"
	"github.com/bnema/proxied/internal/usecase/status"
	"github.com/bnema/proxied/pkg/bytesize"
	"github.com/bnema/proxied/pkg/certutil"
	"github.com/bnema/proxied/pkg/logger"
	"github.com/bnema/proxied/pkg/version"
)

// Kernel holds the wired services shared by the CLI commands and the daemon.
//
// It does not start listeners or the scheduler; see Serve.
type Kernel struct {
	cfg   *config.Config
	log   *logger.Logger
	store *sqlite.Store

	routeSvc     in.RouteService
	buildSvc     in.BuildService
	reconcileSvc in.ReconcileService
	setupSvc     in.SetupService
	statusSvc    in.StatusService
	certSvc      in.CertificateService
}

// NewKernel opens the route store and builds every service.
func NewKernel(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Kernel, error) {
	if log == nil {
		log = logger.Nop()
	}

	store, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open route store: %w", err)
	}

	// validated by config.Load
	maxBody, _ := bytesize.Parse(cfg.Proxy.ClientMaxBodySize)
	renderer, err := nginx.NewRenderer(nginx.RenderConfig{
		WebRoot:           cfg.Paths.WebRoot,
		LogsRoot:          cfg.Paths.LogsRoot,
		IncludesRoot:      cfg.Paths.IncludesRoot,
		ChallengeDocRoot:  cfg.Paths.ChallengeDocRoot,
		ClientMaxBodySize: bytesize.Nginx(maxBody),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	layout := nginx.NewLayout(cfg.Paths.ServersRoot, cfg.Paths.LogsRoot, renderer)
	bootstrap := nginx.NewBootstrap(nginx.BootstrapConfig{
		IncludesRoot: cfg.Paths.IncludesRoot,
		ConfRoot:     cfg.Paths.ConfRoot,
		Directories: []string{
			cfg.Paths.ServersRoot,
			cfg.Paths.ChallengeDocRoot,
			cfg.Paths.CertsRoot,
			cfg.Paths.ManualCertsRoot,
			cfg.Paths.SelfSignedCertsRoot,
			filepath.Dir(cfg.Store.Path),
		},
	}, renderer)
	proc := nginx.NewController(process.NewExecutor(), nginx.Commands{
		Test:    cfg.Proxy.TestCommand,
		Reload:  cfg.Proxy.ReloadCommand,
		Version: cfg.Proxy.VersionCommand,
	})
	locker := lock.NewFileLock(cfg.Lock.Path)

	certStore := filesystem.NewCertStore(filesystem.CertStoreConfig{
		LetsEncryptRoot: cfg.Paths.CertsRoot,
		ManualRoot:      cfg.Paths.ManualCertsRoot,
		SelfSignedRoot:  cfg.Paths.SelfSignedCertsRoot,
		AccountKeyType:  certutil.KeyType(cfg.ACME.AccountKeyType),
		DomainKeyType:   certutil.KeyType(cfg.ACME.DomainKeyType),
	})
	certSvc := certificate.NewService(newACMEClient(cfg.ACME, log), certStore, certificate.Config{
		ContactEmails:    cfg.ACME.ContactEmail,
		ChallengeDocRoot: cfg.Paths.ChallengeDocRoot,
		RenewalWindow:    cfg.ACME.RenewalWindow(),
		Timeout:          cfg.ACME.Timeout,
	}, log)

	statusClient := &http.Client{Timeout: 5 * time.Second}

	return &Kernel{
		cfg:          cfg,
		log:          log,
		store:        store,
		routeSvc:     routes.NewService(store, log),
		buildSvc:     build.NewService(store, layout, proc, certSvc, locker, build.Config{
			ClearErrorOnSuccess: cfg.Build.ClearErrorOnSuccess,
			RenewalWindow:       cfg.ACME.RenewalWindow(),
			RenewalRetry:        cfg.ACME.RenewalRetry,
		}, log),
		reconcileSvc: reconcile.NewService(store, layout, proc, locker, log),
		setupSvc:     setup.NewService(bootstrap, proc, log),
		statusSvc:    status.NewService(nginx.NewStatusReader(cfg.Proxy.StatusURL, statusClient)),
		certSvc:      certSvc,
	}, nil
}

// newACMEClient selects the ACME driver.
func newACMEClient(cfg config.ACMEConfig, log *logger.Logger) out.ACMEClient {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.Driver == config.DriverLego {
		return lego.NewClient(cfg.DirectoryURL, httpClient, log)
	}
	return acme.NewClient(acme.Config{
		DirectoryURL:      cfg.DirectoryURL,
		UserAgent:         version.UserAgent(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		PollAttempts:      cfg.PollAttempts,
		PollInterval:      cfg.PollInterval,
		PollMaxInterval:   cfg.PollMaxInterval,
		SkipSelfCheck:     cfg.SkipSelfCheck,
	}, httpClient, log)
}

// Close releases the route store.
func (k *Kernel) Close() error {
	if k == nil || k.store == nil {
		return nil
	}
	return k.store.Close()
}

func (k *Kernel) Config() *config.Config { return k.cfg }

func (k *Kernel) Routes() in.RouteService { return k.routeSvc }

func (k *Kernel) Build() in.BuildService { return k.buildSvc }

func (k *Kernel) Reconcile() in.ReconcileService { return k.reconcileSvc }

func (k *Kernel) Setup() in.SetupService { return k.setupSvc }

func (k *Kernel) Status() in.StatusService { return k.statusSvc }

func (k *Kernel) Certificates() in.CertificateService { return k.certSvc }
