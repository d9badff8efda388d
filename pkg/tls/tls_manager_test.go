package tls

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func TestDisabledManager(t *testing.T) {
	m, err := NewManager(Config{HTTPPort: "8080"})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if m.Enabled() || m.TLSConfig() != nil || m.NeedsHTTPServer() {
		t.Error("disabled manager reports TLS")
	}
	if m.HTTPPort() != "8080" {
		t.Errorf("HTTPPort = %q", m.HTTPPort())
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"letsencrypt without domain", Config{EnableTLS: true, EnableLetsEncrypt: true, LetsEncryptEmail: "a@b.c"}},
		{"letsencrypt without email", Config{EnableTLS: true, EnableLetsEncrypt: true, Domain: "basic.test"}},
		{"manual without files", Config{EnableTLS: true}},
		{"manual with missing files", Config{EnableTLS: true, CertFile: "nope.crt", KeyFile: "nope.key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(tt.cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestManualCertificate(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	if err := GenerateSelfSignedCert(certFile, keyFile, []string{"localhost", "127.0.0.1"}, time.Hour); err != nil {
		t.Fatalf("GenerateSelfSignedCert error: %v", err)
	}

	m, err := NewManager(Config{EnableTLS: true, CertFile: certFile, KeyFile: keyFile, HTTPSPort: "8443"})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	cfg := m.TLSConfig()
	if cfg == nil || len(cfg.Certificates) != 1 {
		t.Fatalf("TLSConfig = %+v", cfg)
	}
	if m.NeedsHTTPServer() {
		t.Error("plain port needed without redirect or ACME")
	}
}

func TestLetsEncryptManager(t *testing.T) {
	m, err := NewManager(Config{
		EnableTLS:         true,
		EnableLetsEncrypt: true,
		Domain:            "basic.test",
		LetsEncryptEmail:  "ops@basic.test",
		CertCacheDir:      t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if m.TLSConfig() == nil || m.TLSConfig().GetCertificate == nil {
		t.Error("autocert TLS config missing")
	}
	if !m.NeedsHTTPServer() {
		t.Error("ACME challenges need the plain port")
	}
}

func TestRedirectHandler(t *testing.T) {
	m := &Manager{config: Config{EnableTLS: true, ForceHTTPSRedirect: true, HTTPSPort: "8443"}}
	h := m.HTTPHandler(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "http://basic.test:8080/api/auth/validate?x=1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Location"); got != "https://basic.test:8443/api/auth/validate?x=1" {
		t.Errorf("Location = %q", got)
	}

	plain := &Manager{config: Config{EnableTLS: true}}
	w = httptest.NewRecorder()
	plain.HTTPHandler(http.NotFoundHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("fallback status = %d", w.Code)
	}
}
