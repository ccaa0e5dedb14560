package ledger

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newSignerForTest(t *testing.T) (*RecordSigner, ed25519.PublicKey) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	signer, err := NewRecordSigner("ed25519-raw",
		base64.StdEncoding.EncodeToString(pub),
		base64.StdEncoding.EncodeToString(seed),
	)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer, pub
}

func TestNewRecordSignerAcceptsSeedAndFullKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)

	fromSeed, err := NewRecordSigner("ed25519-raw", "pub", base64.StdEncoding.EncodeToString(seed))
	if err != nil {
		t.Fatalf("from seed: %v", err)
	}
	fromKey, err := NewRecordSigner("ed25519-raw", "pub", base64.StdEncoding.EncodeToString(priv))
	if err != nil {
		t.Fatalf("from full key: %v", err)
	}

	p1, err := fromSeed.SignRecord(map[string]any{"handle": "h"}, nil)
	if err != nil {
		t.Fatalf("sign from seed: %v", err)
	}
	p2, err := fromKey.SignRecord(map[string]any{"handle": "h"}, nil)
	if err != nil {
		t.Fatalf("sign from key: %v", err)
	}
	if p1.Result != p2.Result {
		t.Fatal("seed and full key must produce the same signature")
	}
}

func TestNewRecordSignerRejectsBadSecrets(t *testing.T) {
	if _, err := NewRecordSigner("ed25519-raw", "pub", "!!not-base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := NewRecordSigner("ed25519-raw", "pub", short); err == nil {
		t.Fatal("expected error for wrong key length")
	}
}

func TestSignRecordProducesVerifiableProof(t *testing.T) {
	signer, pub := newSignerForTest(t)

	custom := map[string]any{"moment": "2024-05-01T10:00:00Z", "status": "committed"}
	proof, err := signer.SignRecord(map[string]any{"handle": "intent-1", "schema": "payment-collection"}, custom)
	if err != nil {
		t.Fatalf("sign record: %v", err)
	}
	if proof.Method != ProofMethodEd25519V2 {
		t.Fatalf("unexpected method: %s", proof.Method)
	}
	if proof.Public != signer.Public {
		t.Fatalf("unexpected public key: %s", proof.Public)
	}
	if proof.Status() != "committed" {
		t.Fatalf("unexpected proof status: %s", proof.Status())
	}

	digest, err := base64.RawURLEncoding.DecodeString(proof.Digest)
	if err != nil {
		t.Fatalf("decode digest: %v", err)
	}
	if len(digest) != sha256.Size {
		t.Fatalf("unexpected digest length: %d", len(digest))
	}
	sig, err := base64.RawURLEncoding.DecodeString(proof.Result)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if !ed25519.Verify(pub, digest, sig) {
		t.Fatal("signature does not verify over digest")
	}
}

func TestSignRecordStableAcrossKeyOrder(t *testing.T) {
	signer, _ := newSignerForTest(t)

	a, err := signer.SignRecord(map[string]any{"b": 2, "a": 1}, nil)
	if err != nil {
		t.Fatalf("sign a: %v", err)
	}
	b, err := signer.SignRecord(map[string]any{"a": 1, "b": 2}, nil)
	if err != nil {
		t.Fatalf("sign b: %v", err)
	}
	if a.Digest != b.Digest || a.Result != b.Result {
		t.Fatal("digest must not depend on map key order")
	}
}

func TestBearerTokenClaims(t *testing.T) {
	signer, pub := newSignerForTest(t)

	tokenString, err := signer.BearerToken("ledger-one", 60*time.Second)
	if err != nil {
		t.Fatalf("bearer token: %v", err)
	}

	parsed, err := jwt.Parse(tokenString, func(tok *jwt.Token) (any, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}), jwt.WithAudience("ledger-one"))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("expected map claims")
	}
	if claims["iss"] != signer.Public {
		t.Fatalf("unexpected iss: %v", claims["iss"])
	}
	if claims["sub"] != "signer:"+signer.Public {
		t.Fatalf("unexpected sub: %v", claims["sub"])
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		t.Fatalf("expiration claim: %v", err)
	}
	if until := time.Until(exp.Time); until <= 0 || until > 61*time.Second {
		t.Fatalf("unexpected token lifetime: %v", until)
	}
}
