// Package cryptoutil holds the AEAD, key-exchange and derivation
// primitives shared by the secrets vault and the host keyring fallback.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/portkey-dev/portkey/internal/perr"
)

// HKDF derives n bytes from secret, labeled by info.
func HKDF(secret []byte, info string, n int) []byte {
	h := hkdf.New(sha256.New, secret, nil, []byte(info))
	out := make([]byte, n)
	io.ReadFull(h, out)
	return out
}

func gcm(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// AEADEncrypt seals plaintext under key using AES-256-GCM with a fresh
// random nonce.
func AEADEncrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := gcm(key)
	if err != nil {
		return nil, nil, perr.Wrap(perr.EncryptionFailed, "construct AEAD", err)
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, perr.Wrap(perr.EncryptionFailed, "generate nonce", err)
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// AEADDecrypt opens ciphertext under key and nonce.
func AEADDecrypt(key, ciphertext, nonce []byte) ([]byte, error) {
	aead, err := gcm(key)
	if err != nil {
		return nil, perr.Wrap(perr.DecryptionFailed, "construct AEAD", err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, perr.Wrap(perr.DecryptionFailed, "open ciphertext", err)
	}
	return plain, nil
}

// DH computes the X25519 shared secret between a local scalar and a
// peer's public point.
func DH(secret, peerPublic [32]byte) ([32]byte, error) {
	var out [32]byte
	shared, err := curve25519.X25519(secret[:], peerPublic[:])
	if err != nil {
		return out, perr.Wrap(perr.EncryptionFailed, "x25519", err)
	}
	copy(out[:], shared)
	return out, nil
}

// NewX25519KeyPair generates a fresh X25519 scalar/point pair.
func NewX25519KeyPair() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, perr.Wrap(perr.EncryptionFailed, "generate scalar", err)
	}
	pub, err = DerivePublic(priv)
	return priv, pub, err
}

// DerivePublic computes the X25519 public point for a given private
// scalar.
func DerivePublic(priv [32]byte) ([32]byte, error) {
	var pub [32]byte
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, perr.Wrap(perr.EncryptionFailed, "derive public point", err)
	}
	copy(pub[:], p)
	return pub, nil
}

// EncryptForRecipient performs an ephemeral X25519 exchange against
// recipientPub, derives an AES-256 key via HKDF over the shared secret,
// and seals plaintext under it. The ephemeral public point travels
// alongside the ciphertext so the recipient can redo the exchange.
func EncryptForRecipient(recipientPub [32]byte, plaintext []byte) (ephemeralPub [32]byte, ciphertext, nonce []byte, err error) {
	ephemeralPriv, ephemeralPub, err := NewX25519KeyPair()
	if err != nil {
		return ephemeralPub, nil, nil, err
	}
	shared, err := DH(ephemeralPriv, recipientPub)
	if err != nil {
		return ephemeralPub, nil, nil, err
	}
	key := HKDF(shared[:], "portkey/secrets/1.0.0", 32)
	ciphertext, nonce, err = AEADEncrypt(key, plaintext)
	return ephemeralPub, ciphertext, nonce, err
}

// DecryptFromSender redoes the X25519 exchange using our private scalar
// and the sender's ephemeral public point, then opens the ciphertext.
func DecryptFromSender(ourPriv [32]byte, senderEphemeralPub [32]byte, ciphertext, nonce []byte) ([]byte, error) {
	shared, err := DH(ourPriv, senderEphemeralPub)
	if err != nil {
		return nil, err
	}
	key := HKDF(shared[:], "portkey/secrets/1.0.0", 32)
	return AEADDecrypt(key, ciphertext, nonce)
}
