package ledger

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ProofMethodEd25519V2 = "ed25519-v2"

// RecordSigner holds the bridge's own signing identity. Record proofs and the
// per-request bearer token are both produced from the same ed25519 keypair.
type RecordSigner struct {
	Format string
	Public string

	priv ed25519.PrivateKey
}

// NewRecordSigner parses base64-encoded ed25519 key material. The secret may
// be a 32-byte seed or a full 64-byte private key.
func NewRecordSigner(format, public, secret string) (*RecordSigner, error) {
	raw, err := decodeKey(secret)
	if err != nil {
		return nil, fmt.Errorf("decode signer secret: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("signer secret has unexpected length %d", len(raw))
	}
	return &RecordSigner{Format: format, Public: public, priv: priv}, nil
}

// SignRecord produces a proof over a record's data section plus the proof's
// own custom payload. The digest is a base64url sha-256 of the canonical JSON;
// the result is the ed25519 signature over the digest bytes.
func (s *RecordSigner) SignRecord(data any, custom map[string]any) (Proof, error) {
	canonical, err := canonicalJSON(map[string]any{"custom": custom, "data": data})
	if err != nil {
		return Proof{}, fmt.Errorf("canonicalize record: %w", err)
	}
	sum := sha256.Sum256(canonical)
	digest := base64.RawURLEncoding.EncodeToString(sum[:])
	sig := ed25519.Sign(s.priv, sum[:])
	return Proof{
		Method: ProofMethodEd25519V2,
		Public: s.Public,
		Digest: digest,
		Result: base64.RawURLEncoding.EncodeToString(sig),
		Custom: custom,
	}, nil
}

// BearerToken mints a short-lived EdDSA JWT for a ledger API request.
func (s *RecordSigner) BearerToken(audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.Public,
		"sub": "signer:" + s.Public,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.priv)
	if err != nil {
		return "", fmt.Errorf("sign bearer token: %w", err)
	}
	return signed, nil
}

// canonicalJSON renders a value with object keys sorted, so signatures are
// stable across field ordering.
func canonicalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	// encoding/json sorts map keys on marshal.
	return json.Marshal(generic)
}

func decodeKey(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("key is not valid base64")
}
