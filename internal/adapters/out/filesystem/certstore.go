package filesystem

import (
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/certutil"
	"github.com/bnema/proxied/pkg/fsutil"
	"github.com/bnema/proxied/pkg/validation"
)

const accountDir = "_account"

// Certificate file names inside a per-domain directory.
const (
	PrivateKeyFile = "private.pem"
	PublicKeyFile  = "public.pem"
	FullChainFile  = "fullchain.pem"
)

// CertStoreConfig locates certificates for every SSL type.
type CertStoreConfig struct {
	LetsEncryptRoot string
	ManualRoot      string
	SelfSignedRoot  string
	AccountKeyType  certutil.KeyType
	DomainKeyType   certutil.KeyType
}

// CertStore implements out.CertificateStore on the local filesystem.
type CertStore struct {
	cfg CertStoreConfig
}

var _ out.CertificateStore = (*CertStore)(nil)

// NewCertStore creates a certificate store. Key types default to rsa4096.
func NewCertStore(cfg CertStoreConfig) *CertStore {
	if cfg.AccountKeyType == "" {
		cfg.AccountKeyType = certutil.RSA4096
	}
	if cfg.DomainKeyType == "" {
		cfg.DomainKeyType = certutil.RSA4096
	}
	return &CertStore{cfg: cfg}
}

func (s *CertStore) root(sslType domain.SSLType) (string, error) {
	switch sslType {
	case domain.SSLLetsEncrypt:
		return s.cfg.LetsEncryptRoot, nil
	case domain.SSLManual:
		return s.cfg.ManualRoot, nil
	case domain.SSLSelfSigned:
		return s.cfg.SelfSignedRoot, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownSSLType, sslType)
	}
}

// Paths returns <root>/<primary>/{private.pem,public.pem,fullchain.pem,<primary>.pem}.
func (s *CertStore) Paths(sslType domain.SSLType, primary string) (domain.CertificatePaths, error) {
	root, err := s.root(sslType)
	if err != nil {
		return domain.CertificatePaths{}, err
	}
	dir, err := validation.ChildDir(root, primary)
	if err != nil {
		return domain.CertificatePaths{}, fmt.Errorf("invalid primary domain: %w", err)
	}
	return domain.CertificatePaths{
		Dir:        dir,
		PrivateKey: filepath.Join(dir, PrivateKeyFile),
		PublicKey:  filepath.Join(dir, PublicKeyFile),
		FullChain:  filepath.Join(dir, FullChainFile),
		Combined:   filepath.Join(dir, primary+".pem"),
	}, nil
}

// AccountKey returns the PEM account key, generating it on first use.
func (s *CertStore) AccountKey() ([]byte, error) {
	dir := filepath.Join(s.cfg.LetsEncryptRoot, accountDir)
	keyPath := filepath.Join(dir, PrivateKeyFile)

	data, err := os.ReadFile(keyPath)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, &domain.KeyError{Path: keyPath, Err: err}
	}

	key, err := s.generate(dir, s.cfg.AccountKeyType)
	if err != nil {
		return nil, err
	}
	return certutil.EncodePrivateKey(key)
}

// DomainKey loads <letsencrypt-root>/<primary>/private.pem, generating it
// on first use.
func (s *CertStore) DomainKey(primary string) (crypto.Signer, error) {
	paths, err := s.Paths(domain.SSLLetsEncrypt, primary)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(paths.PrivateKey)
	if errors.Is(err, os.ErrNotExist) {
		return s.generate(paths.Dir, s.cfg.DomainKeyType)
	}
	if err != nil {
		return nil, &domain.KeyError{Path: paths.PrivateKey, Err: err}
	}
	key, err := certutil.ParsePrivateKey(data)
	if err != nil {
		return nil, &domain.KeyError{Path: paths.PrivateKey, Err: err}
	}
	return key, nil
}

// generate writes a fresh private.pem and public.pem into dir.
func (s *CertStore) generate(dir string, kt certutil.KeyType) (crypto.Signer, error) {
	keyPath := filepath.Join(dir, PrivateKeyFile)
	key, err := certutil.GenerateKey(kt)
	if err != nil {
		return nil, &domain.KeyError{Path: keyPath, Err: err}
	}
	priv, err := certutil.EncodePrivateKey(key)
	if err != nil {
		return nil, &domain.KeyError{Path: keyPath, Err: err}
	}
	pub, err := certutil.EncodePublicKey(key)
	if err != nil {
		return nil, &domain.KeyError{Path: keyPath, Err: err}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &domain.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	if err := fsutil.WriteFileAtomic(keyPath, priv, 0600); err != nil {
		return nil, &domain.IOError{Op: "write", Path: keyPath, Err: err}
	}
	pubPath := filepath.Join(dir, PublicKeyFile)
	if err := fsutil.WriteFileAtomic(pubPath, pub, 0644); err != nil {
		return nil, &domain.IOError{Op: "write", Path: pubPath, Err: err}
	}
	return key, nil
}

// ReadChain returns the stored full chain or nil when none exists.
func (s *CertStore) ReadChain(paths domain.CertificatePaths) ([]byte, error) {
	data, err := os.ReadFile(paths.FullChain)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.IOError{Op: "read", Path: paths.FullChain, Err: err}
	}
	return data, nil
}

// SaveChain writes fullchain.pem and <primary>.pem, the chain followed by
// the private key.
func (s *CertStore) SaveChain(paths domain.CertificatePaths, chain []byte) error {
	key, err := os.ReadFile(paths.PrivateKey)
	if err != nil {
		return &domain.IOError{Op: "read", Path: paths.PrivateKey, Err: err}
	}
	if err := fsutil.WriteFileAtomic(paths.FullChain, chain, 0644); err != nil {
		return &domain.IOError{Op: "write", Path: paths.FullChain, Err: err}
	}

	combined := make([]byte, 0, len(chain)+1+len(key))
	combined = append(combined, chain...)
	combined = append(combined, '\n')
	combined = append(combined, key...)
	if err := fsutil.WriteFileAtomic(paths.Combined, combined, 0600); err != nil {
		return &domain.IOError{Op: "write", Path: paths.Combined, Err: err}
	}
	return nil
}

// Exists reports whether the chain and the private key are both present.
func (s *CertStore) Exists(paths domain.CertificatePaths) bool {
	return fsutil.Exists(paths.FullChain) && fsutil.Exists(paths.PrivateKey)
}
