package update

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/clustercore/clustercore/pkg/clustererr"
)

// signBundle produces an RSA-PSS/SHA-256 signature over data, the
// coordinator-side half of the scheme workers verify with.
func signBundle(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto})
}

// verifyBundle checks an RSA-PSS/SHA-256 signature over data against
// pub, returning a clustererr.Integrity error on mismatch so callers
// can distinguish "tampered" from other download failures.
func verifyBundle(pub *rsa.PublicKey, data, signature []byte) error {
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto}); err != nil {
		return clustererr.Integrity("verify-bundle", "signature verification failed, bundle may be tampered", err)
	}
	return nil
}

// parsePublicKeyPEM decodes a PEM-encoded RSA public key, the format
// get_public_key hands back over RPC.
func parsePublicKeyPEM(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key data")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return rsaKey, nil
}

// encodePublicKeyPEM is the coordinator-side inverse of parsePublicKeyPEM.
func encodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
