package acme

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
)

const testToken = "tok_en-123"

// fakeCA is a minimal ACME server that checks every request with go-jose.
type fakeCA struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	nonceSeq int
	nonces   map[string]bool
	accounts map[string]*jose.JSONWebKey
	kids     map[string]string

	// behaviour knobs
	badNonces        int
	orderStatus      string
	pollsUntilValid  int
	challengeInvalid bool
	certContentType  string
	orderProblem     string
	chain            []byte
	onTrigger        func()

	// observations
	triggered    bool
	authzPolls   int
	orderPolls   int
	csr          *x509.CertificateRequest
	posts        map[string]int
	badNonceSent int
	lastPayloads map[string][]byte
}

func newFakeCA(t *testing.T) *fakeCA {
	ca := &fakeCA{
		t:               t,
		nonces:          map[string]bool{},
		accounts:        map[string]*jose.JSONWebKey{},
		kids:            map[string]string{},
		orderStatus:     "pending",
		pollsUntilValid: 1,
		certContentType: contentTypePEMChain,
		chain:           []byte("-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n"),
		posts:           map[string]int{},
		lastPayloads:    map[string][]byte{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/directory", ca.handleDirectory)
	mux.HandleFunc("/new-nonce", ca.handleNonce)
	mux.HandleFunc("/new-account", ca.signed(ca.handleNewAccount))
	mux.HandleFunc("/new-order", ca.signed(ca.handleNewOrder))
	mux.HandleFunc("/order/1", ca.signed(ca.handleOrder))
	mux.HandleFunc("/authz/1", ca.signed(ca.handleAuthz))
	mux.HandleFunc("/chal/1", ca.signed(ca.handleChallenge))
	mux.HandleFunc("/finalize/1", ca.signed(ca.handleFinalize))
	mux.HandleFunc("/cert/1", ca.signed(ca.handleCert))
	ca.srv = httptest.NewServer(mux)
	t.Cleanup(ca.srv.Close)
	return ca
}

func (ca *fakeCA) url(path string) string {
	return ca.srv.URL + path
}

func (ca *fakeCA) newNonce() string {
	ca.nonceSeq++
	n := fmt.Sprintf("nonce-%d", ca.nonceSeq)
	ca.nonces[n] = true
	return n
}

func (ca *fakeCA) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(ca.t, json.NewEncoder(w).Encode(v))
}

func (ca *fakeCA) writeProblem(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeProblem)
	w.WriteHeader(status)
	require.NoError(ca.t, json.NewEncoder(w).Encode(v))
}

func (ca *fakeCA) handleDirectory(w http.ResponseWriter, _ *http.Request) {
	ca.writeJSON(w, http.StatusOK, map[string]any{
		"newNonce":   ca.url("/new-nonce"),
		"newAccount": ca.url("/new-account"),
		"newOrder":   ca.url("/new-order"),
		"revokeCert": ca.url("/revoke-cert"),
		"keyChange":  ca.url("/key-change"),
		"meta":       map[string]string{"termsOfService": ca.url("/tos")},
	})
}

func (ca *fakeCA) handleNonce(w http.ResponseWriter, r *http.Request) {
	ca.mu.Lock()
	w.Header().Set(headerReplayNonce, ca.newNonce())
	ca.mu.Unlock()
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signedRequest struct {
	payload []byte
	header  jose.Header
	kid     string
}

// signed verifies the JWS envelope before handing the request on.
func (ca *fakeCA) signed(next func(http.ResponseWriter, *signedRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := ca.t
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, contentTypeJOSE, r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		jws, err := jose.ParseSigned(string(body), []jose.SignatureAlgorithm{jose.RS256, jose.ES256, jose.ES384, jose.ES512})
		require.NoError(t, err)
		require.Len(t, jws.Signatures, 1)
		hdr := jws.Signatures[0].Protected

		ca.mu.Lock()
		defer ca.mu.Unlock()
		ca.posts[r.URL.Path]++
		w.Header().Set(headerReplayNonce, ca.newNonce())

		require.Equal(t, ca.url(r.URL.Path), hdr.ExtraHeaders[jose.HeaderKey("url")], "url header")
		require.True(t, ca.nonces[hdr.Nonce], "nonce %q was not issued or reused", hdr.Nonce)
		delete(ca.nonces, hdr.Nonce)

		if ca.badNonces > 0 {
			ca.badNonces--
			ca.badNonceSent++
			ca.writeProblem(w, http.StatusBadRequest, map[string]any{
				"type":   problemBadNonce,
				"detail": "JWS has an invalid anti-replay nonce",
			})
			return
		}

		var key *jose.JSONWebKey
		if r.URL.Path == "/new-account" {
			require.NotNil(t, hdr.JSONWebKey, "newAccount must carry a jwk")
			require.Empty(t, hdr.KeyID)
			key = hdr.JSONWebKey
		} else {
			require.Nil(t, hdr.JSONWebKey, "requests after newAccount use kid")
			key = ca.accounts[hdr.KeyID]
			require.NotNil(t, key, "unknown kid %q", hdr.KeyID)
		}
		payload, err := jws.Verify(key)
		require.NoError(t, err, "signature")
		ca.lastPayloads[r.URL.Path] = payload

		next(w, &signedRequest{payload: payload, header: hdr, kid: hdr.KeyID})
	}
}

func thumbprint(t *testing.T, key *jose.JSONWebKey) string {
	tp, err := key.Thumbprint(crypto.SHA256)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(tp)
}

func (ca *fakeCA) handleNewAccount(w http.ResponseWriter, req *signedRequest) {
	var body struct {
		Contact []string `json:"contact"`
		ToS     bool     `json:"termsOfServiceAgreed"`
	}
	require.NoError(ca.t, json.Unmarshal(req.payload, &body))
	require.True(ca.t, body.ToS)

	tp := thumbprint(ca.t, req.header.JSONWebKey)
	kid, exists := ca.kids[tp]
	status := http.StatusOK
	if !exists {
		kid = ca.url(fmt.Sprintf("/acct/%d", len(ca.kids)+1))
		ca.kids[tp] = kid
		ca.accounts[kid] = req.header.JSONWebKey
		status = http.StatusCreated
	}
	w.Header().Set(headerLocation, kid)
	ca.writeJSON(w, status, map[string]any{"status": "valid", "contact": body.Contact})
}

func (ca *fakeCA) orderBody(status string) map[string]any {
	body := map[string]any{
		"status":         status,
		"identifiers":    []map[string]string{{"type": "dns", "value": "example.com"}},
		"authorizations": []string{ca.url("/authz/1")},
		"finalize":       ca.url("/finalize/1"),
	}
	if status == "valid" {
		body["certificate"] = ca.url("/cert/1")
	}
	if status == "invalid" {
		body["error"] = map[string]any{"type": "urn:ietf:params:acme:error:badCSR", "detail": "csr rejected"}
	}
	return body
}

func (ca *fakeCA) handleNewOrder(w http.ResponseWriter, req *signedRequest) {
	if ca.orderProblem != "" {
		ca.writeProblem(w, http.StatusForbidden, map[string]any{
			"type":   ca.orderProblem,
			"detail": "Error creating new order",
			"subproblems": []map[string]any{{
				"type":       "urn:ietf:params:acme:error:rejectedIdentifier",
				"detail":     "forbidden name",
				"identifier": map[string]string{"type": "dns", "value": "bad.example"},
			}},
		})
		return
	}
	var body orderRequest
	require.NoError(ca.t, json.Unmarshal(req.payload, &body))
	require.NotEmpty(ca.t, body.Identifiers)
	w.Header().Set(headerLocation, ca.url("/order/1"))
	ca.writeJSON(w, http.StatusCreated, ca.orderBody(ca.orderStatus))
}

func (ca *fakeCA) handleAuthz(w http.ResponseWriter, req *signedRequest) {
	require.Empty(ca.t, req.payload, "POST-as-GET has an empty payload")
	status, chalStatus := "pending", "pending"
	var chalErr map[string]any
	if ca.triggered {
		ca.authzPolls++
		if ca.authzPolls >= ca.pollsUntilValid {
			status, chalStatus = "valid", "valid"
			if ca.challengeInvalid {
				status, chalStatus = "invalid", "invalid"
				chalErr = map[string]any{
					"type":   "urn:ietf:params:acme:error:unauthorized",
					"detail": "Invalid response from http://example.com/.well-known/acme-challenge/" + testToken,
				}
			}
		}
	}
	challenge := map[string]any{"type": "http-01", "url": ca.url("/chal/1"), "token": testToken, "status": chalStatus}
	if chalErr != nil {
		challenge["error"] = chalErr
	}
	ca.writeJSON(w, http.StatusOK, map[string]any{
		"identifier": map[string]string{"type": "dns", "value": "example.com"},
		"status":     status,
		"challenges": []any{
			map[string]any{"type": "dns-01", "url": ca.url("/chal/2"), "token": "other", "status": "pending"},
			challenge,
		},
	})
}

func (ca *fakeCA) handleChallenge(w http.ResponseWriter, req *signedRequest) {
	require.JSONEq(ca.t, `{}`, string(req.payload))
	ca.triggered = true
	if ca.onTrigger != nil {
		ca.onTrigger()
	}
	ca.writeJSON(w, http.StatusOK, map[string]any{"type": "http-01", "url": ca.url("/chal/1"), "token": testToken, "status": "processing"})
}

func (ca *fakeCA) handleFinalize(w http.ResponseWriter, req *signedRequest) {
	var body struct {
		CSR string `json:"csr"`
	}
	require.NoError(ca.t, json.Unmarshal(req.payload, &body))
	require.False(ca.t, strings.ContainsAny(body.CSR, "+/="), "csr must be unpadded base64url")
	der, err := base64.RawURLEncoding.DecodeString(body.CSR)
	require.NoError(ca.t, err)
	ca.csr, err = x509.ParseCertificateRequest(der)
	require.NoError(ca.t, err)
	ca.writeJSON(w, http.StatusOK, ca.orderBody("processing"))
}

func (ca *fakeCA) handleOrder(w http.ResponseWriter, _ *signedRequest) {
	ca.orderPolls++
	status := ca.orderStatus
	if status == "pending" || status == "ready" {
		status = "valid"
	}
	ca.writeJSON(w, http.StatusOK, ca.orderBody(status))
}

func (ca *fakeCA) handleCert(w http.ResponseWriter, _ *signedRequest) {
	w.Header().Set("Content-Type", ca.certContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ca.chain)
}

// locked runs fn while holding the CA's lock, for configuring knobs and
// reading observations.
func (ca *fakeCA) locked(fn func()) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	fn()
}
