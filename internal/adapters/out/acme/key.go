package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/certutil"
)

// jsonWebKey holds the public members of a JWK. Fields are declared in
// lexical order so the marshalled form is the RFC 7638 canonical input.
type jsonWebKey struct {
	Crv string `json:"crv,omitempty"`
	E   string `json:"e,omitempty"`
	Kty string `json:"kty"`
	N   string `json:"n,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// accountKey is a parsed account key ready to sign JWS envelopes.
type accountKey struct {
	signer     crypto.Signer
	method     jwt.SigningMethod
	jwk        *jsonWebKey
	thumbprint string
}

func b64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// paddedBytes returns n big-endian, left padded to size bytes.
func paddedBytes(n *big.Int, size int) []byte {
	out := make([]byte, size)
	return n.FillBytes(out)
}

func parseAccountKey(keyPEM []byte) (*accountKey, error) {
	signer, err := certutil.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, &domain.KeyError{Err: err}
	}

	k := &accountKey{signer: signer}
	switch key := signer.(type) {
	case *rsa.PrivateKey:
		k.method = jwt.SigningMethodRS256
		k.jwk = &jsonWebKey{
			Kty: "RSA",
			E:   b64(big.NewInt(int64(key.E)).Bytes()),
			N:   b64(key.N.Bytes()),
		}
	case *ecdsa.PrivateKey:
		bits := key.Curve.Params().BitSize
		size := (bits + 7) / 8
		k.jwk = &jsonWebKey{
			Kty: "EC",
			X:   b64(paddedBytes(key.X, size)),
			Y:   b64(paddedBytes(key.Y, size)),
		}
		switch bits {
		case 256:
			k.method, k.jwk.Crv = jwt.SigningMethodES256, "P-256"
		case 384:
			k.method, k.jwk.Crv = jwt.SigningMethodES384, "P-384"
		case 521:
			k.method, k.jwk.Crv = jwt.SigningMethodES512, "P-521"
		default:
			return nil, &domain.KeyError{Err: fmt.Errorf("unsupported curve %s", key.Curve.Params().Name)}
		}
	default:
		return nil, &domain.KeyError{Err: fmt.Errorf("unsupported key type %T", signer)}
	}

	canonical, err := json.Marshal(k.jwk)
	if err != nil {
		return nil, &domain.KeyError{Err: err}
	}
	sum := sha256.Sum256(canonical)
	k.thumbprint = b64(sum[:])
	return k, nil
}

// Alg returns the JOSE algorithm name.
func (k *accountKey) Alg() string {
	return k.method.Alg()
}

// sign returns the JOSE signature over protected64.payload64. ECDSA
// signatures come out as fixed width R||S.
func (k *accountKey) sign(protected64, payload64 string) (string, error) {
	sig, err := k.method.Sign(protected64+"."+payload64, k.signer)
	if err != nil {
		return "", &domain.KeyError{Err: fmt.Errorf("failed to sign request: %w", err)}
	}
	return b64(sig), nil
}

// keyAuthorization binds a challenge token to the account key.
func (k *accountKey) keyAuthorization(token string) string {
	return token + "." + k.thumbprint
}
