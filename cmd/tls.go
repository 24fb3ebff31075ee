package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"net/http"
	"os"
	"time"

	"soundwork/pkg/config"
)

type TLSSettings struct {
	EnableTLS       bool
	CertPath        string
	KeyPath         string
	Production      bool
	AllowSelfSigned bool
}

// tlsSettingsFrom forces TLS on in production.
func tlsSettingsFrom(c *config.Config) TLSSettings {
	return TLSSettings{
		EnableTLS:       c.TLS.Enabled || c.IsProduction(),
		CertPath:        c.TLS.CertPath,
		KeyPath:         c.TLS.KeyPath,
		Production:      c.IsProduction(),
		AllowSelfSigned: c.TLS.SelfSigned,
	}
}

func (s TLSSettings) Validate() error {
	if !s.Production {
		return nil
	}
	if !s.EnableTLS {
		return errors.New("TLS must be enabled in production")
	}
	if s.CertPath == "" || s.KeyPath == "" {
		return errors.New("TLS_CERT_PATH and TLS_KEY_PATH are required in production")
	}
	return nil
}

func listen(srv *http.Server, s TLSSettings) error {
	if !s.EnableTLS {
		return srv.ListenAndServe()
	}
	tlsConfig, certFile, keyFile, err := buildTLSConfig(s)
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsConfig
	return srv.ListenAndServeTLS(certFile, keyFile)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// buildTLSConfig prefers the configured key pair and falls back to a
// self-signed localhost certificate outside production.
func buildTLSConfig(s TLSSettings) (*tls.Config, string, string, error) {
	if s.CertPath != "" && s.KeyPath != "" && fileExists(s.CertPath) && fileExists(s.KeyPath) {
		cert, err := tls.LoadX509KeyPair(s.CertPath, s.KeyPath)
		if err != nil {
			return nil, "", "", err
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, s.CertPath, s.KeyPath, nil
	}

	if !s.Production && s.AllowSelfSigned {
		cert, err := generateSelfSignedCert()
		if err != nil {
			return nil, "", "", err
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, "", "", nil
	}

	return nil, "", "", errors.New("no TLS certificates available")
}

func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return tls.Certificate{}, err
	}

	tmpl := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: "localhost", Organization: []string{"soundwork dev"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(30 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	return tls.X509KeyPair(certPEM, keyPEM)
}
