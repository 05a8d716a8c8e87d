package certutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseKey(t *testing.T) {
	for _, kt := range []KeyType{EC256, EC384, RSA2048} {
		t.Run(string(kt), func(t *testing.T) {
			key, err := GenerateKey(kt)
			require.NoError(t, err)

			data, err := EncodePrivateKey(key)
			require.NoError(t, err)

			parsed, err := ParsePrivateKey(data)
			require.NoError(t, err)
			pubKey, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
			require.True(t, ok)
			assert.True(t, pubKey.Equal(parsed.Public()))

			pub, err := EncodePublicKey(key)
			require.NoError(t, err)
			assert.Contains(t, string(pub), "BEGIN PUBLIC KEY")
		})
	}
}

func TestGenerateKeyUnsupported(t *testing.T) {
	_, err := GenerateKey("dsa1024")
	assert.Error(t, err)
}

func TestParsePrivateKeyPKCS8(t *testing.T) {
	key, err := GenerateKey(EC256)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	parsed, err := ParsePrivateKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	require.NoError(t, err)
	_, ok := parsed.(*ecdsa.PrivateKey)
	assert.True(t, ok)
}

func TestParsePrivateKeyInvalid(t *testing.T) {
	_, err := ParsePrivateKey([]byte("not a key"))
	assert.Error(t, err)

	_, err = ParsePrivateKey(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte("junk")}))
	assert.Error(t, err)
}

func TestCreateCSR(t *testing.T) {
	key, err := GenerateKey(EC256)
	require.NoError(t, err)

	der, err := CreateCSR(key, []string{"example.com", "www.example.com"})
	require.NoError(t, err)

	csr, err := x509.ParseCertificateRequest(der)
	require.NoError(t, err)
	require.NoError(t, csr.CheckSignature())
	assert.Equal(t, "example.com", csr.Subject.CommonName)
	assert.Equal(t, []string{"example.com", "www.example.com"}, csr.DNSNames)

	_, err = CreateCSR(key, nil)
	assert.Error(t, err)
}

func TestNotAfter(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	expiry := time.Now().Add(45 * 24 * time.Hour).Truncate(time.Second).UTC()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     expiry,
		DNSNames:     []string{"example.com"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	chain := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	got, err := NotAfter(chain)
	require.NoError(t, err)
	assert.True(t, expiry.Equal(got))

	_, err = NotAfter([]byte("garbage"))
	assert.Error(t, err)
}
