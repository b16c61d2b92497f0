package acmeclient

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
)

// CSR builds a DER certificate request with commonName as subject and every
// domain as a DNS SAN.
func CSR(commonName string, domains []string, key crypto.Signer) ([]byte, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("create CSR: no domains")
	}
	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: commonName},
		DNSNames: domains,
	}, key)
	if err != nil {
		return nil, fmt.Errorf("create CSR: %w", err)
	}
	return csr, nil
}
