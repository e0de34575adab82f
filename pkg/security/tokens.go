package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clustercore/clustercore/pkg/storage"
	"github.com/clustercore/clustercore/pkg/types"
)

// TokenIssuer signs and verifies bearer tokens carrying the claims from
// spec.md §3 AuthToken: subject, expiry, issued-at and an optional
// internal flag. The wire form is "<base64 claims>.<hex hmac>" — a
// deliberately simpler scheme than a general JOSE/JWT library since
// clustercore only ever verifies tokens it signed itself with a single
// shared secret (no external issuer, no key rotation across issuers).
type TokenIssuer struct {
	secret []byte
	store  storage.Store
}

// NewTokenIssuer constructs an issuer keyed by the cluster's jwt_secret.
func NewTokenIssuer(secret string, store storage.Store) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), store: store}
}

type claims struct {
	Sub      string `json:"sub"`
	Exp      int64  `json:"exp"`
	Iat      int64  `json:"iat"`
	Internal bool   `json:"internal,omitempty"`
	JTI      string `json:"jti"`
}

// Issue mints a bearer token for subject, valid for ttl.
func (ti *TokenIssuer) Issue(subject string, ttl time.Duration, internal bool) (string, error) {
	jti := make([]byte, 16)
	if _, err := rand.Read(jti); err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	now := time.Now()
	c := claims{
		Sub:      subject,
		Iat:      now.Unix(),
		Exp:      now.Add(ttl).Unix(),
		Internal: internal,
		JTI:      hex.EncodeToString(jti),
	}

	body, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(body)
	sig := ti.sign(encoded)
	return encoded + "." + sig, nil
}

// Verify checks signature, expiry and revocation, returning the decoded
// claims on success.
func (ti *TokenIssuer) Verify(token string) (*types.AuthToken, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed token")
	}
	encoded, sig := parts[0], parts[1]

	if !hmac.Equal([]byte(sig), []byte(ti.sign(encoded))) {
		return nil, fmt.Errorf("bad token signature")
	}

	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	var c claims
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	if time.Now().Unix() > c.Exp {
		return nil, fmt.Errorf("token expired")
	}

	if ti.store != nil {
		revoked, err := ti.store.IsRevoked(c.JTI)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("token revoked")
		}
	}

	return &types.AuthToken{
		Subject:  c.Sub,
		Expiry:   time.Unix(c.Exp, 0),
		IssuedAt: time.Unix(c.Iat, 0),
		Internal: c.Internal,
	}, nil
}

// Revoke adds the token to the revocation list until its own expiry.
func (ti *TokenIssuer) Revoke(token string) error {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed token")
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	var c claims
	if err := json.Unmarshal(body, &c); err != nil {
		return fmt.Errorf("unmarshal claims: %w", err)
	}
	return ti.store.RevokeToken(c.JTI, c.Exp)
}

// PruneRevocations drops revocation entries whose own expiry has passed.
func (ti *TokenIssuer) PruneRevocations() error {
	return ti.store.PruneExpiredRevocations(time.Now().Unix())
}

func (ti *TokenIssuer) sign(encoded string) string {
	mac := hmac.New(sha256.New, ti.secret)
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}
