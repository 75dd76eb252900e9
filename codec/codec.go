// Package codec handles the cryptographic half of the bridge protocol:
// tolerant Base64 decoding of keys and payload fields, key-hint
// derivation, and AES-256-GCM payload decryption. Decryption failures
// are values, never panics — the caller decides how to surface them.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"strings"
)

// rawStd is the standard alphabet without padding; Normalize strips
// padding so every variant funnels through one decoder.
var rawStd = base64.RawStdEncoding

// KeyHintLen is the number of leading Base64 characters of the symmetric
// key that accompany ciphertext so a receiver can cheaply detect a key
// mismatch before touching the cipher.
const KeyHintLen = 4

// Status classifies a decryption outcome.
type Status int

const (
	StatusOK Status = iota
	StatusNoKey
	StatusKeyMismatch
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoKey:
		return "no_key"
	case StatusKeyMismatch:
		return "key_mismatch"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the outcome of a decryption attempt.
type Result struct {
	Status    Status
	Plaintext string
}

// Text returns the plaintext, or a visible placeholder so a failure
// stays diagnosable downstream without crashing the pipeline.
func (r Result) Text() string {
	switch r.Status {
	case StatusOK:
		return r.Plaintext
	case StatusNoKey:
		return "[No Key]"
	case StatusKeyMismatch:
		return "[Key Mismatch]"
	}
	return "[Decryption Error]"
}

// Normalize repairs a Base64 string that passed through a lossy
// transport path: URL-safe alphabet back to standard, and the legacy
// space-for-plus corruption from copy-paste and URL decoding.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	s = strings.ReplaceAll(s, " ", "+")
	return strings.TrimRight(s, "=")
}

// DecodeLoose decodes Base64 tolerating standard and URL-safe
// alphabets, optional padding, and space-for-plus corruption.
func DecodeLoose(s string) ([]byte, error) {
	return rawStd.DecodeString(Normalize(s))
}

// Encode produces the canonical (standard, unpadded) Base64 form.
// Normalize(Encode(b)) == Encode(b), so normalization is a fixed point.
func Encode(b []byte) string {
	return rawStd.EncodeToString(b)
}

// KeyHint derives the hint for a Base64-encoded key.
func KeyHint(keyB64 string) string {
	k := Normalize(keyB64)
	if len(k) < KeyHintLen {
		return k
	}
	return k[:KeyHintLen]
}

// Decrypt opens an AES-256-GCM payload. keyB64 is the locally held key;
// recvHint is the key_hint the sender attached, empty if absent. A hint
// mismatch short-circuits before any cipher work.
func Decrypt(ciphertextB64, ivB64, recvHint, keyB64 string) Result {
	if keyB64 == "" {
		return Result{Status: StatusNoKey}
	}
	if recvHint != "" && recvHint != KeyHint(keyB64) {
		return Result{Status: StatusKeyMismatch}
	}

	key, err := DecodeLoose(keyB64)
	if err != nil || len(key) != 32 {
		return Result{Status: StatusFailed}
	}
	iv, err := DecodeLoose(ivB64)
	if err != nil || len(iv) == 0 {
		return Result{Status: StatusFailed}
	}
	ct, err := DecodeLoose(ciphertextB64)
	if err != nil {
		return Result{Status: StatusFailed}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Result{Status: StatusFailed}
	}
	aead, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return Result{Status: StatusFailed}
	}
	plain, err := aead.Open(nil, iv, ct, nil)
	if err != nil {
		return Result{Status: StatusFailed}
	}
	return Result{Status: StatusOK, Plaintext: string(plain)}
}
