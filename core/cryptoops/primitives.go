// Package cryptoops is a thin façade over the cryptographic primitives
// xtransport needs: X25519 (ECDH), XChaCha20-Poly1305 (AEAD), SHA-256,
// HMAC-SHA-256, HKDF-SHA-256, and a CSPRNG. It never panics on malformed
// or adversarial input — every failure path returns an errs sentinel —
// and it treats key material as opaque, wiping it on drop where the
// caller hands ownership to this package (see Wipe).
//
// Grounded in relaydns/core/cryptoops/handshaker.go, which already builds
// a handshake on exactly this trio of primitives (curve25519, chacha20poly1305,
// hkdf), generalized here into a reusable facade and extended with the
// 24-byte-nonce XChaCha20-Poly1305 variant the framed transport (C5) needs.
package cryptoops

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/gosuda/xtransport/core/errs"
)

const (
	// X25519KeySize is the byte length of an X25519 private or public key.
	X25519KeySize = 32
	// SharedSecretSize is the byte length of an ECDH output.
	SharedSecretSize = 32
	// SessionKeySize is the byte length of an HKDF-derived session key.
	SessionKeySize = 32
	// XNonceSize is the byte length of an XChaCha20-Poly1305 nonce.
	XNonceSize = chacha20poly1305.NonceSizeX
	// TagSize is the byte length of the AEAD authentication tag.
	TagSize = chacha20poly1305.Overhead
	// Sha256Size is the byte length of a SHA-256 digest.
	Sha256Size = sha256.Size
)

// KeyPair is an ephemeral X25519 keypair. It exists only for the lifetime
// of a single handshake (spec §3 Lifecycle) and should be discarded with
// Wipe once the shared secret has been derived.
type KeyPair struct {
	Private [X25519KeySize]byte
	Public  [X25519KeySize]byte
}

// Wipe zeroes the private half of the keypair. It is safe to call more
// than once.
func (kp *KeyPair) Wipe() {
	Wipe(kp.Private[:])
}

// GenerateKeyPair creates a fresh X25519 keypair using the system CSPRNG.
func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return KeyPair{}, fmt.Errorf("%w: generate x25519 key: %v", errs.ErrKeyExchange, err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: derive x25519 public key: %v", errs.ErrKeyExchange, err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// ECDH computes the X25519 shared secret between a local private key and
// a peer's public key. Both inputs must be exactly X25519KeySize bytes.
//
// Per spec §4.2, implementations MAY reject the all-zero (contributory)
// output; this implementation does reject it, since golang.org/x/crypto's
// curve25519.X25519 already does so internally and surfaces it as an
// error — callers must not assume either behavior when interoperating
// with a different X25519 implementation.
func ECDH(private, peerPublic []byte) ([]byte, error) {
	if len(private) != X25519KeySize || len(peerPublic) != X25519KeySize {
		return nil, fmt.Errorf("%w: x25519 keys must be %d bytes", errs.ErrKeyExchange, X25519KeySize)
	}
	secret, err := curve25519.X25519(private, peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrKeyExchange, err)
	}
	return secret, nil
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) [Sha256Size]byte {
	return sha256.Sum256(data)
}

// HMACSHA256 returns HMAC-SHA256(key, data).
func HMACSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// ConstantTimeEqual reports whether a and b are equal using a
// constant-time comparison, independent of where the first mismatch
// occurs. Used for transcript MAC verification (spec §4.4).
func ConstantTimeEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// HKDFSHA256 derives an L-byte key from ikm using salt and info, per
// spec §4.2: hkdf_sha256(ikm, salt, info, L).
func HKDFSHA256(ikm, salt, info []byte, l int) ([]byte, error) {
	reader := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, l)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrKeyDerivation, err)
	}
	return out, nil
}

// SealXChaCha20Poly1305 encrypts plaintext under key with the given
// 24-byte nonce, returning ciphertext || 16-byte tag. No AAD is used
// anywhere in xtransport (spec GLOSSARY).
func SealXChaCha20Poly1305(key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := newXAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != XNonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", errs.ErrEncryption, XNonceSize)
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// OpenXChaCha20Poly1305 decrypts and authenticates ciphertext (which must
// include the trailing 16-byte tag) under key with the given 24-byte
// nonce. A tag mismatch returns errs.ErrDecryption; this is never
// retryable on the same ciphertext.
func OpenXChaCha20Poly1305(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newXAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != XNonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", errs.ErrDecryption, XNonceSize)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.ErrDecryption
	}
	return plaintext, nil
}

func newXAEAD(key []byte) (interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}, error) {
	if len(key) != SessionKeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", errs.ErrInvalidKeyMaterial, SessionKeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidKeyMaterial, err)
	}
	return aead, nil
}

// CSPRNGBytes returns n cryptographically random bytes.
func CSPRNGBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("%w: csprng: %v", errs.ErrKeyExchange, err)
	}
	return b, nil
}

// Wipe zeroes b in place. Used to scrub ephemeral secrets, shared
// secrets, and session keys once they are no longer needed (spec §3
// Invariants: "Session keys ... are zeroized on drop where feasible").
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
