// Package tls serves HTTPS from manual certificates or Let's Encrypt.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"

	"golang.org/x/crypto/acme/autocert"
)

// Config holds the [TLS] settings.
type Config struct {
	EnableTLS          bool
	EnableLetsEncrypt  bool
	Domain             string
	LetsEncryptEmail   string
	CertCacheDir       string
	ForceHTTPSRedirect bool
	CertFile           string
	KeyFile            string
	HTTPPort           string
	HTTPSPort          string
}

// ConfigFromSettings reads [TLS] and the HTTP port from [Server].
func ConfigFromSettings() Config {
	return Config{
		EnableTLS:          configuration.GetBool("TLS", "enable_tls", false),
		EnableLetsEncrypt:  configuration.GetBool("TLS", "enable_letsencrypt", false),
		Domain:             strings.TrimSpace(configuration.GetString("TLS", "domain", "")),
		LetsEncryptEmail:   strings.TrimSpace(configuration.GetString("TLS", "letsencrypt_email", "")),
		CertCacheDir:       configuration.GetString("TLS", "cert_cache_dir", "certs"),
		ForceHTTPSRedirect: configuration.GetBool("TLS", "force_https_redirect", false),
		CertFile:           configuration.GetString("TLS", "cert_file", ""),
		KeyFile:            configuration.GetString("TLS", "key_file", ""),
		HTTPPort:           configuration.GetString("Server", "http_port", "8080"),
		HTTPSPort:          configuration.GetString("TLS", "https_port", "443"),
	}
}

// Manager provides the tls.Config for the HTTPS server and the handler
// for the plain HTTP port.
type Manager struct {
	config      Config
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
}

// NewManager validates cfg and prepares certificates. With TLS disabled
// the manager only reports that.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{config: cfg}
	if err := m.validateConfig(); err != nil {
		return nil, fmt.Errorf("TLS configuration validation failed: %w", err)
	}
	if !cfg.EnableTLS {
		return m, nil
	}
	var err error
	if cfg.EnableLetsEncrypt {
		err = m.initializeLetsEncrypt()
	} else {
		err = m.initializeManualTLS()
	}
	if err != nil {
		return nil, fmt.Errorf("TLS initialization failed: %w", err)
	}
	return m, nil
}

func (m *Manager) validateConfig() error {
	if !m.config.EnableTLS {
		return nil
	}
	if m.config.EnableLetsEncrypt {
		if m.config.Domain == "" {
			return fmt.Errorf("domain is required when Let's Encrypt is enabled")
		}
		if m.config.LetsEncryptEmail == "" {
			return fmt.Errorf("letsencrypt_email is required when Let's Encrypt is enabled")
		}
		return nil
	}
	if m.config.CertFile == "" || m.config.KeyFile == "" {
		return fmt.Errorf("cert_file and key_file are required without Let's Encrypt")
	}
	return nil
}

func (m *Manager) initializeLetsEncrypt() error {
	logger.Info(logger.AreaSecurity, "Initializing Let's Encrypt for domain: %s", m.config.Domain)
	if err := os.MkdirAll(m.config.CertCacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create certificate cache directory: %w", err)
	}

	m.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(m.config.CertCacheDir),
		Prompt:     autocert.AcceptTOS,
		Email:      m.config.LetsEncryptEmail,
		HostPolicy: autocert.HostWhitelist(m.config.Domain, "www."+m.config.Domain),
	}
	m.tlsConfig = m.autocertMgr.TLSConfig()
	m.tlsConfig.MinVersion = tls.VersionTLS12
	return nil
}

func (m *Manager) initializeManualTLS() error {
	logger.Info(logger.AreaSecurity, "Loading certificate %s with key %s", m.config.CertFile, m.config.KeyFile)
	cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
	if err != nil {
		return fmt.Errorf("loading key pair: %w", err)
	}
	m.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}
	return nil
}

// TLSConfig returns nil when TLS is disabled.
func (m *Manager) TLSConfig() *tls.Config {
	if !m.config.EnableTLS {
		return nil
	}
	return m.tlsConfig
}

// Enabled reports whether HTTPS is served.
func (m *Manager) Enabled() bool {
	return m.config.EnableTLS
}

// HTTPPort returns the plain HTTP port.
func (m *Manager) HTTPPort() string {
	return m.config.HTTPPort
}

// HTTPSPort returns the HTTPS port.
func (m *Manager) HTTPSPort() string {
	return m.config.HTTPSPort
}

// NeedsHTTPServer reports whether the plain port must stay open next to
// HTTPS, for ACME challenges or redirects.
func (m *Manager) NeedsHTTPServer() bool {
	return m.config.EnableTLS && (m.config.EnableLetsEncrypt || m.config.ForceHTTPSRedirect)
}

// HTTPHandler is served on the plain port while TLS is on. It answers
// ACME challenges and redirects the rest when configured to, otherwise it
// hands requests to fallback.
func (m *Manager) HTTPHandler(fallback http.Handler) http.Handler {
	next := fallback
	if m.config.ForceHTTPSRedirect {
		next = m.redirectHandler()
	}
	if m.autocertMgr != nil {
		return m.autocertMgr.HTTPHandler(next)
	}
	return next
}

func (m *Manager) redirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host
		if m.config.HTTPSPort != "443" {
			target += ":" + m.config.HTTPSPort
		}
		target += r.URL.RequestURI()
		logger.Debug(logger.AreaSecurity, "Redirecting %s to %s", r.URL, target)
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// GenerateSelfSignedCert writes a certificate and key for hosts to
// certFile and keyFile. Meant for development setups.
func GenerateSelfSignedCert(certFile, keyFile string, hosts []string, validFor time.Duration) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generating serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"RetroBASIC development"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("creating certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding key: %w", err)
	}

	if err := writePEM(certFile, "CERTIFICATE", der, 0644); err != nil {
		return err
	}
	if err := writePEM(keyFile, "EC PRIVATE KEY", keyDER, 0600); err != nil {
		return err
	}
	logger.Info(logger.AreaSecurity, "Self-signed certificate written to %s", certFile)
	return nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
