package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
)

// DirectoryTLS builds a *tls.Config trusting the ACME_CA_ROOTS bundle.
// Returns nil, nil if no bundle is configured (system roots).
func (c *Config) DirectoryTLS() (*tls.Config, error) {
	if c.DirectoryCARoots == "" {
		return nil, nil
	}

	caPEM, err := os.ReadFile(c.DirectoryCARoots)
	if err != nil {
		return nil, fmt.Errorf("read ACME CA roots: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse ACME CA roots")
	}

	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// DirectoryHTTPClient returns the HTTP client used to talk to the CA, or nil
// for the acme package default.
func (c *Config) DirectoryHTTPClient() (*http.Client, error) {
	tlsConfig, err := c.DirectoryTLS()
	if err != nil || tlsConfig == nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport}, nil
}
