package acme

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/bnema/proxied/internal/domain"
)

type orderRequest struct {
	Identifiers []identifier `json:"identifiers"`
}

type orderResource struct {
	Status         string       `json:"status"`
	Identifiers    []identifier `json:"identifiers"`
	Authorizations []string     `json:"authorizations"`
	Finalize       string       `json:"finalize"`
	Certificate    string       `json:"certificate"`
	Error          *problem     `json:"error"`
}

func (o *orderResource) toDomain(url string) *domain.ACMEOrder {
	order := &domain.ACMEOrder{
		URL:            url,
		Status:         o.Status,
		Authorizations: o.Authorizations,
		Finalize:       o.Finalize,
		Certificate:    o.Certificate,
	}
	for _, id := range o.Identifiers {
		order.Identifiers = append(order.Identifiers, id.Value)
	}
	return order
}

// NewOrder requests a certificate for domains.
func (c *Client) NewOrder(ctx context.Context, domains []string) (*domain.ACMEOrder, error) {
	if len(domains) == 0 {
		return nil, domain.ErrNoDomains
	}
	dir, err := c.directory(ctx)
	if err != nil {
		return nil, err
	}

	req := orderRequest{}
	for _, name := range domains {
		req.Identifiers = append(req.Identifiers, identifier{Type: identifierTypeDNS, Value: name})
	}

	var res orderResource
	resp, err := c.postJSON(ctx, dir.NewOrder, req, &res)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusCreated {
		return nil, protocolErrorf(dir.NewOrder, "unexpected status %d for newOrder", resp.status)
	}
	if resp.location == "" {
		return nil, protocolErrorf(dir.NewOrder, "newOrder response has no Location header")
	}
	if res.Status == "" || res.Finalize == "" || res.Authorizations == nil {
		return nil, protocolErrorf(resp.location, "order is missing status, finalize or authorizations")
	}

	order := res.toDomain(resp.location)
	c.log.Info("order created", "url", order.URL, "status", order.Status, "domains", domains)
	return order, nil
}

// Finalize submits the CSR, waits for issuance and downloads the chain.
func (c *Client) Finalize(ctx context.Context, order *domain.ACMEOrder, csrDER []byte) ([]byte, error) {
	var res orderResource
	if _, err := c.postJSON(ctx, order.Finalize, map[string]string{"csr": b64(csrDER)}, &res); err != nil {
		return nil, err
	}
	if res.Status == "" {
		return nil, protocolErrorf(order.Finalize, "order has no status")
	}

	err := c.poll(ctx, order.URL, func() (bool, error) {
		switch res.Status {
		case domain.StatusProcessing:
			res = orderResource{}
			if _, err := c.postJSON(ctx, order.URL, nil, &res); err != nil {
				return false, err
			}
			return res.Status != domain.StatusProcessing, nil
		default:
			return true, nil
		}
	})
	if err != nil {
		return nil, err
	}

	order.Status = res.Status
	if res.Status != domain.StatusValid {
		if res.Error != nil {
			return nil, res.Error.toError(order.URL, 0)
		}
		return nil, protocolErrorf(order.URL, "order is %s after finalize", res.Status)
	}
	if res.Certificate == "" {
		return nil, protocolErrorf(order.URL, "valid order has no certificate url")
	}
	order.Certificate = res.Certificate

	return c.downloadCertificate(ctx, order.Certificate)
}

func (c *Client) downloadCertificate(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.post(ctx, url, nil, false, contentTypePEMChain)
	if err != nil {
		return nil, err
	}
	if ct := mediaType(resp.header.Get("Content-Type")); ct != contentTypePEMChain {
		return nil, protocolErrorf(url, "certificate has content type %q, want %s", ct, contentTypePEMChain)
	}
	if len(resp.body) == 0 {
		return nil, protocolErrorf(url, "empty certificate chain")
	}
	c.log.Info("certificate downloaded", "url", url)
	return resp.body, nil
}

// poll runs check until it reports done, sleeping with exponential backoff
// between attempts. It gives up after the configured number of attempts.
func (c *Client) poll(ctx context.Context, url string, check func() (bool, error)) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.cfg.PollInterval),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(c.cfg.PollMaxInterval),
		backoff.WithMaxElapsedTime(0),
	)

	for attempt := 1; ; attempt++ {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt >= c.cfg.PollAttempts {
			return &domain.ProtocolError{URL: url, Err: domain.ErrPollExhausted}
		}

		wait := b.NextBackOff()
		c.log.Debug("polling", "url", url, "attempt", attempt, "wait", wait)
		if err := c.Sleep(ctx, wait); err != nil {
			return &domain.ProtocolError{URL: url, Err: err}
		}
	}
}
