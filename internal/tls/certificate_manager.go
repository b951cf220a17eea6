package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"
)

// expiryWarning is how close to NotAfter a loaded certificate starts logging warnings.
const expiryWarning = 30 * 24 * time.Hour

// CertificateManager holds the serving certificate and swaps it on Reload.
type CertificateManager struct {
	certFile string
	keyFile  string
	current  atomic.Pointer[tls.Certificate]
	logger   *slog.Logger
	now      func() time.Time
}

// NewCertificateManager loads and validates the certificate pair. Paths must be absolute.
func NewCertificateManager(certFile, keyFile string, logger *slog.Logger) (*CertificateManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for name, path := range map[string]string{"certificate": certFile, "private key": keyFile} {
		if path == "" {
			return nil, fmt.Errorf("%s file is required", name)
		}
		if !filepath.IsAbs(filepath.Clean(path)) {
			return nil, fmt.Errorf("%s file path must be absolute: %q", name, path)
		}
	}

	m := &CertificateManager{
		certFile: filepath.Clean(certFile),
		keyFile:  filepath.Clean(keyFile),
		logger:   logger,
		now:      time.Now,
	}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Paths returns the watched certificate and key files.
func (m *CertificateManager) Paths() []string {
	return []string{m.certFile, m.keyFile}
}

// GetCertificate implements tls.Config.GetCertificate.
func (m *CertificateManager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := m.current.Load()
	if cert == nil {
		return nil, errors.New("no serving certificate loaded")
	}
	return cert, nil
}

// Reload reads the pair from disk. On failure the previous certificate stays in use.
func (m *CertificateManager) Reload() error {
	cert, err := tls.LoadX509KeyPair(m.certFile, m.keyFile)
	if err != nil {
		return fmt.Errorf("load server certificate: %w", err)
	}
	leaf, err := m.validate(&cert)
	if err != nil {
		return err
	}
	cert.Leaf = leaf
	m.current.Store(&cert)

	m.logger.Info("serving certificate loaded",
		"cert_file", m.certFile,
		"subject", leaf.Subject.String(),
		"dns_names", leaf.DNSNames,
		"not_after", leaf.NotAfter,
		"serial_number", leaf.SerialNumber.String())
	return nil
}

// NotAfter returns the expiry of the certificate currently served.
func (m *CertificateManager) NotAfter() time.Time {
	if cert := m.current.Load(); cert != nil && cert.Leaf != nil {
		return cert.Leaf.NotAfter
	}
	return time.Time{}
}

func (m *CertificateManager) validate(cert *tls.Certificate) (*x509.Certificate, error) {
	if len(cert.Certificate) == 0 {
		return nil, errors.New("certificate chain is empty")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse leaf certificate: %w", err)
	}

	now := m.now()
	if now.Before(leaf.NotBefore) {
		return nil, fmt.Errorf("certificate is not valid before %s", leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		return nil, fmt.Errorf("certificate expired at %s", leaf.NotAfter.Format(time.RFC3339))
	}
	if leaf.NotAfter.Sub(now) <= expiryWarning {
		m.logger.Warn("serving certificate expires soon",
			"subject", leaf.Subject.String(),
			"not_after", leaf.NotAfter)
	}

	if leaf.KeyUsage != 0 &&
		leaf.KeyUsage&x509.KeyUsageKeyEncipherment == 0 &&
		leaf.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		return nil, errors.New("certificate lacks required key usage (KeyEncipherment or DigitalSignature)")
	}
	if len(leaf.ExtKeyUsage) > 0 && !hasServerAuth(leaf.ExtKeyUsage) {
		return nil, errors.New("certificate is not valid for server authentication")
	}
	return leaf, nil
}

func hasServerAuth(usages []x509.ExtKeyUsage) bool {
	for _, u := range usages {
		if u == x509.ExtKeyUsageServerAuth || u == x509.ExtKeyUsageAny {
			return true
		}
	}
	return false
}
