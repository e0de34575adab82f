package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/clustercore/clustercore/pkg/storage"
)

const (
	rootCAValidity   = 10 * 365 * 24 * time.Hour
	leafCertValidity = 90 * 24 * time.Hour
	rootKeySize      = 4096
	leafKeySize      = 2048

	// certRotationThreshold is how close to expiry a worker's leaf cert
	// must get before a reissue is triggered (spec.md §3 CertificateBundle
	// invariant: "when cert age exceeds threshold... a reissue is
	// triggered before the HTTPS server starts").
	certRotationThreshold = 30 * 24 * time.Hour
)

// CertAuthority is the cluster's self-signed CA, run on the coordinator.
// Workers never hold the CA key; they only hold the leaf cert it issued
// them plus the CA's public certificate for verifying peers.
type CertAuthority struct {
	mu       sync.RWMutex
	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey
	store    storage.Store
}

type caData struct {
	RootCertDER []byte
	RootKeyDER  []byte
}

// NewCertAuthority constructs a CA backed by the node's local store.
func NewCertAuthority(store storage.Store) *CertAuthority {
	return &CertAuthority{store: store}
}

// Initialize generates a brand-new root CA key and self-signed cert.
// Called once, on a coordinator's first boot, when no CA is present in
// secure storage.
func (ca *CertAuthority) Initialize() error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	rootKey, err := rsa.GenerateKey(rand.Reader, rootKeySize)
	if err != nil {
		return fmt.Errorf("generate root key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"clustercore"},
			CommonName:   "clustercore Root CA",
		},
		NotBefore:             time.Now(),
		NotAfter:               time.Now().Add(rootCAValidity),
		KeyUsage:               x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                   true,
		BasicConstraintsValid:  true,
		MaxPathLen:             1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return fmt.Errorf("create root certificate: %w", err)
	}

	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse root certificate: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// LoadFromStore loads a previously-initialized CA from secure storage.
func (ca *CertAuthority) LoadFromStore() error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	data, err := ca.store.GetCA()
	if err != nil {
		return fmt.Errorf("load CA: %w", err)
	}

	var cd caData
	if err := json.Unmarshal(data, &cd); err != nil {
		return fmt.Errorf("unmarshal CA data: %w", err)
	}

	rootCert, err := x509.ParseCertificate(cd.RootCertDER)
	if err != nil {
		return fmt.Errorf("parse root certificate: %w", err)
	}
	rootKey, err := x509.ParsePKCS1PrivateKey(cd.RootKeyDER)
	if err != nil {
		return fmt.Errorf("parse root key: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// SaveToStore persists the CA so a restarted coordinator need not mint
// a new one (which would invalidate every issued worker cert).
func (ca *CertAuthority) SaveToStore() error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return fmt.Errorf("CA not initialized")
	}

	cd := caData{
		RootCertDER: ca.rootCert.Raw,
		RootKeyDER:  x509.MarshalPKCS1PrivateKey(ca.rootKey),
	}
	data, err := json.Marshal(cd)
	if err != nil {
		return fmt.Errorf("marshal CA data: %w", err)
	}
	return ca.store.SaveCA(data)
}

// IsInitialized reports whether the CA has a loaded or generated key pair.
func (ca *CertAuthority) IsInitialized() bool {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootCert != nil && ca.rootKey != nil
}

// Fingerprint returns the SHA-256 fingerprint of the CA's certificate,
// used by workers to detect CA rotation (spec.md §3 CertificateBundle).
func (ca *CertAuthority) Fingerprint() string {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	if ca.rootCert == nil {
		return ""
	}
	sum := sha256.Sum256(ca.rootCert.Raw)
	return fmt.Sprintf("%x", sum)
}

// RootCertDER returns the CA's certificate in DER form.
func (ca *CertAuthority) RootCertDER() []byte {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	if ca.rootCert == nil {
		return nil
	}
	return ca.rootCert.Raw
}

// IssueLeaf signs a new leaf certificate for nodeID with the given SANs,
// used both for the coordinator's own leaf (at boot) and for workers
// completing the bootstrap challenge in bootstrap.go.
func (ca *CertAuthority) IssueLeaf(nodeID string, dnsNames []string, ips []net.IP) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, leafKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate leaf key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"clustercore"},
			CommonName:   nodeID,
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(leafCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ips,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &leafKey.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("create leaf certificate: %w", err)
	}

	leafCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse leaf certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER, ca.rootCert.Raw},
		PrivateKey:  leafKey,
		Leaf:        leafCert,
	}, nil
}

// VerifyPeerCert checks a peer's leaf certificate against this CA.
func (ca *CertAuthority) VerifyPeerCert(cert *x509.Certificate) error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil {
		return fmt.Errorf("CA not initialized")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.rootCert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}
