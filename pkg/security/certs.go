package security

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// certDir returns the directory under stateDir where this node's leaf
// cert, key and CA cert live (spec.md §6 "certs/…").
func certDir(stateDir string) string {
	return filepath.Join(stateDir, "certs")
}

// SaveLeafBundle writes the leaf cert, its key and the CA cert to disk.
func SaveLeafBundle(stateDir string, cert *tls.Certificate, caCertDER []byte) error {
	dir := certDir(stateDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	if err := os.WriteFile(filepath.Join(dir, "leaf.crt"), certPEM, 0600); err != nil {
		return fmt.Errorf("write leaf cert: %w", err)
	}

	key, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("leaf private key is not RSA")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(filepath.Join(dir, "leaf.key"), keyPEM, 0600); err != nil {
		return fmt.Errorf("write leaf key: %w", err)
	}

	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caCertDER})
	if err := os.WriteFile(filepath.Join(dir, "ca.crt"), caPEM, 0644); err != nil {
		return fmt.Errorf("write CA cert: %w", err)
	}
	return nil
}

// LoadLeafBundle loads the leaf cert/key pair and the CA cert from disk.
func LoadLeafBundle(stateDir string) (*tls.Certificate, *x509.Certificate, error) {
	dir := certDir(stateDir)

	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, "leaf.crt"), filepath.Join(dir, "leaf.key"))
	if err != nil {
		return nil, nil, fmt.Errorf("load leaf cert: %w", err)
	}
	if cert.Leaf == nil {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, nil, fmt.Errorf("parse leaf cert: %w", err)
		}
		cert.Leaf = leaf
	}

	caPEM, err := os.ReadFile(filepath.Join(dir, "ca.crt"))
	if err != nil {
		return nil, nil, fmt.Errorf("read CA cert: %w", err)
	}
	block, _ := pem.Decode(caPEM)
	if block == nil {
		return nil, nil, fmt.Errorf("decode CA cert PEM")
	}
	caCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse CA cert: %w", err)
	}

	return &cert, caCert, nil
}

// BundleExists reports whether a leaf bundle is present on disk.
func BundleExists(stateDir string) bool {
	dir := certDir(stateDir)
	for _, f := range []string{"leaf.crt", "leaf.key", "ca.crt"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return false
		}
	}
	return true
}

// PoolFromCert builds an x509.CertPool containing a single CA
// certificate, the shape both pkg/transport's TLS config builders and
// an *http.Server's ClientCAs expect.
func PoolFromCert(caCert *x509.Certificate) (*x509.CertPool, error) {
	if caCert == nil {
		return nil, fmt.Errorf("nil CA certificate")
	}
	pool := x509.NewCertPool()
	pool.AddCert(caCert)
	return pool, nil
}

// NeedsReissue reports whether the loaded leaf cert is missing, close to
// expiry, or was signed by a CA whose fingerprint no longer matches the
// currently-known CA (spec.md §3 CertificateBundle invariant).
func NeedsReissue(leaf *x509.Certificate, caCert *x509.Certificate, currentCAFingerprint string) bool {
	if leaf == nil {
		return true
	}
	if time.Until(leaf.NotAfter) < certRotationThreshold {
		return true
	}
	if caCert != nil && currentCAFingerprint != "" {
		return fingerprintOf(caCert) != currentCAFingerprint
	}
	return false
}

func fingerprintOf(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return fmt.Sprintf("%x", sum)
}
