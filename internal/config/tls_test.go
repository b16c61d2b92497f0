package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryTLS_NoConfig(t *testing.T) {
	cfg := &Config{}
	tlsCfg, err := cfg.DirectoryTLS()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	client, err := cfg.DirectoryHTTPClient()
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestDirectoryTLS_WithCARoots(t *testing.T) {
	cfg := &Config{DirectoryCARoots: generateTestCA(t)}

	tlsCfg, err := cfg.DirectoryTLS()
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	assert.NotNil(t, tlsCfg.RootCAs)

	client, err := cfg.DirectoryHTTPClient()
	require.NoError(t, err)
	require.NotNil(t, client)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.NotNil(t, transport.TLSClientConfig.RootCAs)
}

func TestDirectoryTLS_MissingFile(t *testing.T) {
	cfg := &Config{DirectoryCARoots: "/nonexistent/ca.pem"}
	_, err := cfg.DirectoryTLS()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read ACME CA roots")
}

func TestDirectoryTLS_InvalidCARoots(t *testing.T) {
	badCA := filepath.Join(t.TempDir(), "bad-ca.pem")
	require.NoError(t, os.WriteFile(badCA, []byte("not a cert"), 0o600))

	cfg := &Config{DirectoryCARoots: badCA}
	_, err := cfg.DirectoryTLS()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse ACME CA roots")
}

// generateTestCA writes a self-signed CA certificate and returns its path.
func generateTestCA(t *testing.T) string {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test ACME CA"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}
