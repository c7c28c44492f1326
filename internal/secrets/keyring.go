// Vault keypair persistence: the OS credential store when available,
// falling back to a passphrase-sealed file at a caller-supplied path.
package secrets

import (
	"crypto/rand"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/portkey-dev/portkey/internal/cryptoutil"
	"github.com/portkey-dev/portkey/internal/perr"
)

const keyringService = "portkey-vault"

// LoadOrGenerateKeyPair returns the vault's persistent X25519 keypair,
// storing it in the OS keyring under account. When no keyring backend
// is available, it falls back to an Argon2id/XChaCha20-Poly1305 sealed
// file at fallbackPath, encrypted under passphrase.
func LoadOrGenerateKeyPair(account, fallbackPath, passphrase string) (priv, pub [32]byte, err error) {
	if secret, kerr := keyring.Get(keyringService, account); kerr == nil {
		if len(secret) != 32 {
			return priv, pub, perr.New(perr.KeyringError, "stored vault key has unexpected length")
		}
		copy(priv[:], secret)
		pub, err = cryptoutil.DerivePublic(priv)
		return priv, pub, err
	}

	if b, rerr := os.ReadFile(fallbackPath); rerr == nil {
		priv, err = unsealPrivateKey(b, passphrase)
		if err != nil {
			return priv, pub, err
		}
		pub, err = cryptoutil.DerivePublic(priv)
		return priv, pub, err
	} else if !os.IsNotExist(rerr) {
		return priv, pub, perr.Wrap(perr.Io, "read vault key file", rerr)
	}

	priv, pub, err = cryptoutil.NewX25519KeyPair()
	if err != nil {
		return priv, pub, err
	}

	if kerr := keyring.Set(keyringService, account, string(priv[:])); kerr == nil {
		return priv, pub, nil
	}

	sealed, serr := sealPrivateKey(priv, passphrase)
	if serr != nil {
		return priv, pub, serr
	}
	if err := os.MkdirAll(filepath.Dir(fallbackPath), 0o700); err != nil {
		return priv, pub, perr.Wrap(perr.Io, "create vault key directory", err)
	}
	if err := os.WriteFile(fallbackPath, sealed, 0o600); err != nil {
		return priv, pub, perr.Wrap(perr.Io, "write vault key file", err)
	}
	return priv, pub, nil
}

const argon2SaltSize = 16

func sealPrivateKey(priv [32]byte, passphrase string) ([]byte, error) {
	salt := make([]byte, argon2SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, perr.Wrap(perr.EncryptionFailed, "generate salt", err)
	}
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, perr.Wrap(perr.EncryptionFailed, "construct aead", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, perr.Wrap(perr.EncryptionFailed, "generate nonce", err)
	}
	ct := aead.Seal(nil, nonce, priv[:], nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(ct))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}

func unsealPrivateKey(blob []byte, passphrase string) ([32]byte, error) {
	var priv [32]byte
	if len(blob) < argon2SaltSize+chacha20poly1305.NonceSizeX {
		return priv, perr.New(perr.DecryptionFailed, "vault key file too short")
	}
	salt := blob[:argon2SaltSize]
	nonce := blob[argon2SaltSize : argon2SaltSize+chacha20poly1305.NonceSizeX]
	ct := blob[argon2SaltSize+chacha20poly1305.NonceSizeX:]

	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return priv, perr.Wrap(perr.DecryptionFailed, "construct aead", err)
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return priv, perr.Wrap(perr.DecryptionFailed, "open vault key file", err)
	}
	if len(plain) != 32 {
		return priv, perr.New(perr.DecryptionFailed, "unsealed vault key has unexpected length")
	}
	copy(priv[:], plain)
	return priv, nil
}
