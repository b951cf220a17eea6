package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// Config contains the listener TLS settings.
type Config struct {
	CertFile     string
	KeyFile      string
	ClientCAFile string
}

// BuildServer constructs a TLS configuration that serves the manager's current
// certificate. A client CA bundle turns on mandatory client certificates.
func BuildServer(cfg Config, certs *CertificateManager) (*tls.Config, error) {
	if certs == nil {
		return nil, fmt.Errorf("server TLS requires a certificate manager")
	}

	serverConfig := &tls.Config{
		GetCertificate: certs.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}

	if cfg.ClientCAFile != "" {
		caPool, err := loadCertPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		serverConfig.ClientCAs = caPool
		serverConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return serverConfig, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("ca bundle path must be absolute: %q", path)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", cleanPath)
	}
	return pool, nil
}
