package acme

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bnema/proxied/internal/domain"
)

// LoadAccountKey parses the account key. Registering again is required
// after the key changes.
func (c *Client) LoadAccountKey(keyPEM []byte) error {
	key, err := parseAccountKey(keyPEM)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.key = key
	c.kid = ""
	c.mu.Unlock()
	c.log.Debug("account key loaded", "alg", key.Alg(), "thumbprint", key.thumbprint)
	return nil
}

type accountRequest struct {
	Contact              []string `json:"contact,omitempty"`
	TermsOfServiceAgreed bool     `json:"termsOfServiceAgreed"`
}

type accountResource struct {
	Status  string   `json:"status"`
	Contact []string `json:"contact"`
}

// Register creates the account for the loaded key, or finds the one the
// server already holds for it.
func (c *Client) Register(ctx context.Context, contacts []string) (*domain.ACMEAccount, error) {
	dir, err := c.directory(ctx)
	if err != nil {
		return nil, err
	}

	req := accountRequest{TermsOfServiceAgreed: true}
	for _, contact := range contacts {
		contact = strings.TrimSpace(contact)
		if contact == "" {
			continue
		}
		if !strings.HasPrefix(contact, "mailto:") {
			contact = "mailto:" + contact
		}
		req.Contact = append(req.Contact, contact)
	}

	resp, err := c.post(ctx, dir.NewAccount, req, true, "")
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK && resp.status != http.StatusCreated {
		return nil, protocolErrorf(dir.NewAccount, "unexpected status %d for newAccount", resp.status)
	}
	if resp.location == "" {
		return nil, protocolErrorf(dir.NewAccount, "newAccount response has no Location header")
	}

	var acct accountResource
	if err := json.Unmarshal(resp.body, &acct); err != nil {
		return nil, &domain.ProtocolError{URL: dir.NewAccount, Status: resp.status, Err: err}
	}
	if acct.Status == "" {
		return nil, protocolErrorf(dir.NewAccount, "account resource has no status")
	}
	if acct.Status != domain.StatusValid {
		return nil, protocolErrorf(resp.location, "account is %s", acct.Status)
	}

	c.mu.Lock()
	c.kid = resp.location
	c.mu.Unlock()

	account := &domain.ACMEAccount{
		URL:     resp.location,
		Status:  acct.Status,
		Created: resp.status == http.StatusCreated,
	}
	c.log.Info("acme account ready", "url", account.URL, "created", account.Created)
	return account, nil
}
