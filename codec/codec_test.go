package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

// seal is the sender side: AES-256-GCM with a random 12-byte IV.
func seal(t *testing.T, key []byte, plaintext string) (ctB64, ivB64 string) {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	aead, err := cipher.NewGCM(block)
	require.NoError(t, err)
	iv := make([]byte, aead.NonceSize())
	_, err = rand.Read(iv)
	require.NoError(t, err)
	ct := aead.Seal(nil, iv, []byte(plaintext), nil)
	return Encode(ct), Encode(iv)
}

func newKey(t *testing.T) ([]byte, string) {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key, Encode(key)
}

func TestNormalizeVariants(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	canonical := Encode(key)
	variants := []string{
		base64.StdEncoding.EncodeToString(key),
		base64.RawStdEncoding.EncodeToString(key),
		base64.URLEncoding.EncodeToString(key),
		base64.RawURLEncoding.EncodeToString(key),
	}
	// Space-for-plus corruption on top of the standard form.
	corrupted := ""
	for _, r := range base64.StdEncoding.EncodeToString(key) {
		if r == '+' {
			corrupted += " "
		} else {
			corrupted += string(r)
		}
	}
	variants = append(variants, corrupted)

	for _, v := range variants {
		decoded, err := DecodeLoose(v)
		require.NoError(t, err, "variant %q", v)
		require.Equal(t, key, decoded, "variant %q", v)
		require.Equal(t, canonical, Normalize(v), "variant %q", v)
	}

	// Normalization is a fixed point.
	require.Equal(t, canonical, Normalize(canonical))
	require.Equal(t, canonical, Normalize(Normalize(corrupted)))
}

func TestKeyHint(t *testing.T) {
	require.Equal(t, "AbCd", KeyHint("AbCdEfGh"))
	require.Equal(t, "Ab+d", KeyHint("Ab d EfGh"))
	require.Equal(t, "Ab", KeyHint("Ab"))
}

func TestDecryptRoundTrip(t *testing.T) {
	key, keyB64 := newKey(t)
	ct, iv := seal(t, key, "hello from the phone")

	res := Decrypt(ct, iv, KeyHint(keyB64), keyB64)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, "hello from the phone", res.Plaintext)
	require.Equal(t, "hello from the phone", res.Text())

	// Determinism: same inputs, same output.
	again := Decrypt(ct, iv, KeyHint(keyB64), keyB64)
	require.Equal(t, res, again)
}

func TestDecryptNoHint(t *testing.T) {
	key, keyB64 := newKey(t)
	ct, iv := seal(t, key, "no hint attached")
	res := Decrypt(ct, iv, "", keyB64)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, "no hint attached", res.Plaintext)
}

func TestDecryptKeyMismatchShortCircuit(t *testing.T) {
	_, keyB64 := newKey(t)
	// Garbage that would fail any cipher stage; the hint check must
	// reject before the cipher ever sees it.
	res := Decrypt("!!!not base64!!!", "!!!", "ZZZZ", keyB64)
	require.Equal(t, StatusKeyMismatch, res.Status)
	require.Equal(t, "[Key Mismatch]", res.Text())
}

func TestDecryptWrongKey(t *testing.T) {
	key, _ := newKey(t)
	_, otherB64 := newKey(t)
	ct, iv := seal(t, key, "secret")

	// No hint, so the cipher runs and the auth tag fails.
	res := Decrypt(ct, iv, "", otherB64)
	require.Equal(t, StatusFailed, res.Status)
	require.Equal(t, "[Decryption Error]", res.Text())
}

func TestDecryptMissingKey(t *testing.T) {
	res := Decrypt("Y3Q", "aXY", "", "")
	require.Equal(t, StatusNoKey, res.Status)
	require.Equal(t, "[No Key]", res.Text())
}

func TestDecryptCorruptInputs(t *testing.T) {
	_, keyB64 := newKey(t)
	cases := []struct {
		name   string
		ct, iv string
	}{
		{"bad ciphertext base64", "***", "AAAAAAAAAAAAAAAA"},
		{"bad iv base64", "AAAA", "***"},
		{"empty iv", "AAAA", ""},
		{"truncated ciphertext", "AA", Encode(make([]byte, 12))},
	}
	for _, c := range cases {
		res := Decrypt(c.ct, c.iv, "", keyB64)
		require.Equal(t, StatusFailed, res.Status, c.name)
	}
}

func TestDecryptSpaceCorruptedKey(t *testing.T) {
	key, _ := newKey(t)
	ct, iv := seal(t, key, "resilient")

	corrupted := ""
	for _, r := range base64.StdEncoding.EncodeToString(key) {
		if r == '+' {
			corrupted += " "
		} else {
			corrupted += string(r)
		}
	}
	res := Decrypt(ct, iv, "", corrupted)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, "resilient", res.Plaintext)
}
