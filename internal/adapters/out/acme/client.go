// Package acme implements an ACME v2 (RFC 8555) client that obtains
// certificates with HTTP-01 challenges.
package acme

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/logger"
)

// Ensure Client implements out.ACMEClient.
var _ out.ACMEClient = (*Client)(nil)

const (
	LetsEncryptProduction = "https://acme-v02.api.letsencrypt.org/directory"
	LetsEncryptStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

const maxResponseSize = 1 << 20

// Config holds the client settings.
type Config struct {
	DirectoryURL      string
	UserAgent         string
	RequestsPerSecond float64
	PollAttempts      int
	PollInterval      time.Duration
	PollMaxInterval   time.Duration
	SkipSelfCheck     bool
}

func (c Config) withDefaults() Config {
	if c.DirectoryURL == "" {
		c.DirectoryURL = LetsEncryptProduction
	}
	if c.UserAgent == "" {
		c.UserAgent = "proxied-acme/1"
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 8
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollMaxInterval <= 0 {
		c.PollMaxInterval = 64 * time.Second
	}
	return c
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SelfCheckFunc verifies that keyAuth is served for token on domain before
// the server is asked to validate it.
type SelfCheckFunc func(ctx context.Context, domain, token, keyAuth string) error

// Client speaks ACME v2 to a single directory.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger

	// Sleep and SelfCheck are replaceable for tests.
	Sleep     SleepFunc
	SelfCheck SelfCheckFunc

	mu     sync.Mutex
	dir    *directory
	key    *accountKey
	kid    string
	nonces []string
}

type directory struct {
	NewNonce   string `json:"newNonce"`
	NewAccount string `json:"newAccount"`
	NewOrder   string `json:"newOrder"`
	RevokeCert string `json:"revokeCert"`
	KeyChange  string `json:"keyChange"`
	Meta       struct {
		TermsOfService string `json:"termsOfService"`
	} `json:"meta"`
}

// response is a read ACME response.
type response struct {
	status   int
	header   http.Header
	body     []byte
	location string
}

// NewClient creates a client. A nil httpClient uses a client with a 30s timeout.
func NewClient(cfg Config, httpClient *http.Client, log *logger.Logger) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:     log.With("component", "acme"),
		Sleep:   sleepContext,
	}
	c.SelfCheck = c.httpSelfCheck
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, req *http.Request) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.ProtocolError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &domain.ProtocolError{URL: req.URL.String(), Status: resp.StatusCode, Err: err}
	}
	if nonce := resp.Header.Get(headerReplayNonce); nonce != "" {
		c.mu.Lock()
		c.nonces = append(c.nonces, nonce)
		c.mu.Unlock()
	}
	return &response{
		status:   resp.StatusCode,
		header:   resp.Header,
		body:     body,
		location: resp.Header.Get(headerLocation),
	}, nil
}

// directory fetches and caches the directory document.
func (c *Client) directory(ctx context.Context) (*directory, error) {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()
	if dir != nil {
		return dir, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DirectoryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, parseProblem(c.cfg.DirectoryURL, resp.status, resp.header.Get("Content-Type"), resp.body)
	}

	dir = &directory{}
	if err := json.Unmarshal(resp.body, dir); err != nil {
		return nil, &domain.ProtocolError{URL: c.cfg.DirectoryURL, Err: fmt.Errorf("invalid directory: %w", err)}
	}
	if dir.NewNonce == "" || dir.NewAccount == "" || dir.NewOrder == "" {
		return nil, protocolErrorf(c.cfg.DirectoryURL, "directory is missing newNonce, newAccount or newOrder")
	}

	c.mu.Lock()
	c.dir = dir
	c.mu.Unlock()
	return dir, nil
}

// nonce returns an unused nonce, fetching one when none is pooled.
func (c *Client) nonce(ctx context.Context) (string, error) {
	c.mu.Lock()
	if n := len(c.nonces); n > 0 {
		nonce := c.nonces[n-1]
		c.nonces = c.nonces[:n-1]
		c.mu.Unlock()
		return nonce, nil
	}
	c.mu.Unlock()
	return c.fetchNonce(ctx)
}

func (c *Client) fetchNonce(ctx context.Context) (string, error) {
	dir, err := c.directory(ctx)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, dir.NewNonce, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// do pooled the header; take it back out
	if n := len(c.nonces); n > 0 {
		nonce := c.nonces[n-1]
		c.nonces = c.nonces[:n-1]
		return nonce, nil
	}
	return "", protocolErrorf(dir.NewNonce, "no %s header in response (status %d)", headerReplayNonce, resp.status)
}

type protectedHeader struct {
	Alg   string      `json:"alg"`
	JWK   *jsonWebKey `json:"jwk,omitempty"`
	Kid   string      `json:"kid,omitempty"`
	Nonce string      `json:"nonce"`
	URL   string      `json:"url"`
}

type jwsEnvelope struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// encode builds the flattened JWS for one request. A nil payload yields
// the empty payload of a POST-as-GET.
func (c *Client) encode(url, nonce string, payload any, useJWK bool) ([]byte, error) {
	c.mu.Lock()
	key, kid := c.key, c.kid
	c.mu.Unlock()
	if key == nil {
		return nil, &domain.KeyError{Err: errors.New("account key not loaded")}
	}

	hdr := protectedHeader{Alg: key.Alg(), Nonce: nonce, URL: url}
	if useJWK {
		hdr.JWK = key.jwk
	} else {
		if kid == "" {
			return nil, protocolErrorf(url, "account is not registered")
		}
		hdr.Kid = kid
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, err
	}

	var payload64 string
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payload64 = b64(body)
	}

	protected64 := b64(hdrJSON)
	sig, err := key.sign(protected64, payload64)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jwsEnvelope{Protected: protected64, Payload: payload64, Signature: sig})
}

// post sends a signed request. Error responses become ProtocolErrors; a
// badNonce rejection is retried once with a fresh nonce.
func (c *Client) post(ctx context.Context, url string, payload any, useJWK bool, accept string) (*response, error) {
	for attempt := 0; ; attempt++ {
		var nonce string
		var err error
		if attempt == 0 {
			nonce, err = c.nonce(ctx)
		} else {
			nonce, err = c.fetchNonce(ctx)
		}
		if err != nil {
			return nil, err
		}

		body, err := c.encode(url, nonce, payload, useJWK)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentTypeJOSE)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := c.do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.status < 400 {
			return resp, nil
		}

		perr := parseProblem(url, resp.status, resp.header.Get("Content-Type"), resp.body)
		if perr.Type == problemBadNonce && attempt == 0 {
			c.log.Debug("nonce rejected, retrying with a fresh nonce", "url", url)
			c.mu.Lock()
			c.nonces = nil
			c.mu.Unlock()
			continue
		}
		return nil, perr
	}
}

// postJSON sends a signed request and decodes the JSON response into v.
func (c *Client) postJSON(ctx context.Context, url string, payload any, v any) (*response, error) {
	resp, err := c.post(ctx, url, payload, false, "")
	if err != nil {
		return nil, err
	}
	if v != nil {
		if err := json.Unmarshal(resp.body, v); err != nil {
			return nil, &domain.ProtocolError{URL: url, Status: resp.status, Err: fmt.Errorf("invalid response body: %w", err)}
		}
	}
	return resp, nil
}
