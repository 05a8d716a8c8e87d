package acme

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/fsutil"
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type challengeResource struct {
	Type   string   `json:"type"`
	URL    string   `json:"url"`
	Token  string   `json:"token"`
	Status string   `json:"status"`
	Error  *problem `json:"error"`
}

type authorizationResource struct {
	Identifier *identifier          `json:"identifier"`
	Status     string               `json:"status"`
	Challenges []*challengeResource `json:"challenges"`
}

func (a *authorizationResource) http01() *challengeResource {
	for _, ch := range a.Challenges {
		if ch.Type == challengeTypeHTTP01 {
			return ch
		}
	}
	return nil
}

// failure builds the error for an invalid authorization from the
// challenge level problem.
func (a *authorizationResource) failure() error {
	name := ""
	if a.Identifier != nil {
		name = a.Identifier.Value
	}
	for _, ch := range a.Challenges {
		if ch.Error != nil && (ch.Type == challengeTypeHTTP01 || ch.Status == domain.StatusInvalid) {
			return &domain.ChallengeFailedError{Domain: name, Type: ch.Error.Type, Detail: ch.Error.Detail}
		}
	}
	return &domain.ChallengeFailedError{Domain: name, Detail: "authorization is invalid"}
}

func (c *Client) fetchAuthorization(ctx context.Context, url string) (*authorizationResource, error) {
	var authz authorizationResource
	if _, err := c.postJSON(ctx, url, nil, &authz); err != nil {
		return nil, err
	}
	if authz.Status == "" || authz.Identifier == nil {
		return nil, protocolErrorf(url, "authorization is missing status or identifier")
	}
	return &authz, nil
}

// SolveChallenges satisfies each authorization of order in turn. Tokens
// are written below docRoot and removed once the authorization settles.
func (c *Client) SolveChallenges(ctx context.Context, order *domain.ACMEOrder, docRoot string) error {
	if order.Ready() {
		c.log.Debug("order is ready, skipping challenges", "url", order.URL)
		return nil
	}
	for _, url := range order.Authorizations {
		if err := c.solve(ctx, url, docRoot); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) solve(ctx context.Context, url, docRoot string) error {
	authz, err := c.fetchAuthorization(ctx, url)
	if err != nil {
		return err
	}
	name := authz.Identifier.Value
	log := c.log.With("domain", name)

	switch authz.Status {
	case domain.StatusValid:
		log.Debug("authorization already valid")
		return nil
	case domain.StatusPending:
	case domain.StatusInvalid:
		return authz.failure()
	default:
		return protocolErrorf(url, "authorization for %s is %s", name, authz.Status)
	}

	ch := authz.http01()
	if ch == nil {
		return &domain.ProtocolError{URL: url, Err: fmt.Errorf("%s: %w", name, domain.ErrNoHTTP01Challenge)}
	}
	if ch.URL == "" || ch.Token == "" {
		return protocolErrorf(url, "http-01 challenge for %s is missing url or token", name)
	}
	if !tokenPattern.MatchString(ch.Token) {
		return protocolErrorf(ch.URL, "challenge token %q is not base64url", ch.Token)
	}

	c.mu.Lock()
	key := c.key
	c.mu.Unlock()
	if key == nil {
		return &domain.KeyError{Err: fmt.Errorf("account key not loaded")}
	}
	keyAuth := key.keyAuthorization(ch.Token)

	tokenPath := filepath.Join(docRoot, wellKnownChallengeDir, ch.Token)
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0755); err != nil {
		return &domain.IOError{Op: "mkdir", Path: filepath.Dir(tokenPath), Err: err}
	}
	if err := fsutil.WriteFileAtomic(tokenPath, []byte(keyAuth), 0644); err != nil {
		return &domain.IOError{Op: "write", Path: tokenPath, Err: err}
	}
	defer func() {
		if err := os.Remove(tokenPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove challenge token", "path", tokenPath, "error", err)
		}
	}()

	if !c.cfg.SkipSelfCheck && c.SelfCheck != nil {
		if err := c.SelfCheck(ctx, name, ch.Token, keyAuth); err != nil {
			return &domain.ChallengeFailedError{
				Domain: name,
				Type:   "selfcheck",
				Detail: domain.ErrSelfCheckFailed.Error() + ": " + err.Error(),
			}
		}
	}

	log.Info("triggering http-01 validation")
	if ch.Status != domain.StatusProcessing && ch.Status != domain.StatusValid {
		if _, err := c.postJSON(ctx, ch.URL, struct{}{}, nil); err != nil {
			return err
		}
	}

	err = c.poll(ctx, url, func() (bool, error) {
		polled, pollErr := c.fetchAuthorization(ctx, url)
		if pollErr != nil {
			return false, pollErr
		}
		authz = polled
		return authz.Status != domain.StatusPending, nil
	})
	if err != nil {
		return err
	}

	switch authz.Status {
	case domain.StatusValid:
		log.Info("authorization valid")
		return nil
	case domain.StatusInvalid:
		err := authz.failure()
		log.Error("authorization failed", "error", err)
		return err
	default:
		return protocolErrorf(url, "authorization for %s is %s", name, authz.Status)
	}
}

// httpSelfCheck fetches the token over plain HTTP the way the CA will.
func (c *Client) httpSelfCheck(ctx context.Context, name, token, keyAuth string) error {
	url := "http://" + name + "/" + wellKnownChallengeDir + "/" + token
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != keyAuth {
		return fmt.Errorf("%s served unexpected content", url)
	}
	return nil
}
