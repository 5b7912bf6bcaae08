package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Signer derives a session signature from a session id. The signature is
// reused as key material for at-rest encryption and escalation HMACs, so the
// derivation strategy is fixed once at startup.
type Signer interface {
	Sign(sessionID string) string
	// Mode reports the derivation strategy ("hmac" or "legacy").
	Mode() string
}

// NewSigner selects a signing strategy. Anything other than "legacy" returns
// the HMAC-SHA256 signer.
func NewSigner(mode, seed string) Signer {
	if mode == "legacy" {
		return legacySigner{seed: seed}
	}
	return hmacSigner{seed: seed}
}

type hmacSigner struct {
	seed string
}

func (s hmacSigner) Sign(sessionID string) string {
	mac := hmac.New(sha256.New, []byte(s.seed))
	mac.Write([]byte(s.seed + ":" + sessionID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (s hmacSigner) Mode() string { return "hmac" }

// legacySigner is the degraded derivation used when real cryptographic
// primitives are unavailable. It is reversible and must never be enabled in
// production.
type legacySigner struct {
	seed string
}

func (s legacySigner) Sign(sessionID string) string {
	return base64.StdEncoding.EncodeToString([]byte(s.seed + ":" + sessionID))
}

func (s legacySigner) Mode() string { return "legacy" }
