package acme

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/bnema/proxied/internal/domain"
)

// Problem types the client reacts to.
const (
	problemBadNonce = "urn:ietf:params:acme:error:badNonce"
)

const (
	contentTypeJOSE       = "application/jose+json"
	contentTypeProblem    = "application/problem+json"
	contentTypePEMChain   = "application/pem-certificate-chain"
	headerReplayNonce     = "Replay-Nonce"
	headerLocation        = "Location"
	identifierTypeDNS     = "dns"
	challengeTypeHTTP01   = "http-01"
	wellKnownChallengeDir = ".well-known/acme-challenge"
)

type identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// problem is an RFC 7807 document as used by ACME.
type problem struct {
	Type        string `json:"type"`
	Detail      string `json:"detail"`
	Status      int    `json:"status"`
	Subproblems []struct {
		Type       string     `json:"type"`
		Detail     string     `json:"detail"`
		Identifier identifier `json:"identifier"`
	} `json:"subproblems"`
}

func (p *problem) toError(url string, status int) *domain.ProtocolError {
	e := &domain.ProtocolError{
		URL:    url,
		Status: status,
		Type:   p.Type,
		Detail: p.Detail,
	}
	if e.Status == 0 {
		e.Status = p.Status
	}
	for _, sp := range p.Subproblems {
		e.Subproblems = append(e.Subproblems, domain.Subproblem{
			Type:       sp.Type,
			Detail:     sp.Detail,
			Identifier: sp.Identifier.Value,
		})
	}
	return e
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

// parseProblem turns an error response into a ProtocolError, keeping the
// problem document verbatim when the server sent one.
func parseProblem(url string, status int, contentType string, body []byte) *domain.ProtocolError {
	if mediaType(contentType) == contentTypeProblem {
		var p problem
		if err := json.Unmarshal(body, &p); err == nil {
			return p.toError(url, status)
		}
	}
	return &domain.ProtocolError{
		URL:    url,
		Status: status,
		Err:    fmt.Errorf("unexpected response: %s", truncate(string(body), 256)),
	}
}

func protocolErrorf(url, format string, args ...any) *domain.ProtocolError {
	return &domain.ProtocolError{URL: url, Err: fmt.Errorf(format, args...)}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
