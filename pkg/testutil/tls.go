// Package testutil contains helpers for tests.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// LocalCerts contains a root CA and a server certificate signed by the CA
// that is valid for 127.0.0.1.
type LocalCerts struct {
	RootCAs    *x509.CertPool
	ServerCert tls.Certificate
}

// ServerTLSConfig returns a TLS config for a server using the server
// certificate.
func (c *LocalCerts) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{c.ServerCert},
		MinVersion:   tls.VersionTLS12,
	}
}

// ClientTLSConfig returns a TLS config for a client that trusts the root CA.
func (c *LocalCerts) ClientTLSConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    c.RootCAs,
		MinVersion: tls.VersionTLS12,
	}
}

// NewLocalCerts generates a root CA and a server certificate for 127.0.0.1.
func NewLocalCerts() (*LocalCerts, error) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate root key: %w", err)
	}
	rootTemplate, err := certTemplate("spread-test-ca")
	if err != nil {
		return nil, fmt.Errorf("root template: %w", err)
	}
	rootTemplate.IsCA = true
	rootTemplate.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature

	rootCert, err := createCert(rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("root cert: %w", err)
	}

	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate server key: %w", err)
	}
	serverTemplate, err := certTemplate("spread-test-server")
	if err != nil {
		return nil, fmt.Errorf("server template: %w", err)
	}
	serverTemplate.KeyUsage = x509.KeyUsageDigitalSignature
	serverTemplate.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	serverTemplate.IPAddresses = []net.IP{net.IPv4(127, 0, 0, 1)}

	serverCert, err := createCert(serverTemplate, rootCert, &serverKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("server cert: %w", err)
	}

	rootCAs := x509.NewCertPool()
	rootCAs.AddCert(rootCert)

	return &LocalCerts{
		RootCAs: rootCAs,
		ServerCert: tls.Certificate{
			Certificate: [][]byte{serverCert.Raw},
			PrivateKey:  serverKey,
			Leaf:        serverCert,
		},
	}, nil
}

func createCert(
	template *x509.Certificate,
	parent *x509.Certificate,
	publicKey any,
	parentKey any,
) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, publicKey, parentKey)
	if err != nil {
		return nil, fmt.Errorf("create cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse cert: %w", err)
	}
	return cert, nil
}

func certTemplate(commonName string) (*x509.Certificate, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	return &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Spread"},
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
	}, nil
}
