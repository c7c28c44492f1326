// Package secrets implements the Secrets Vault: parsing an env-style
// key/value file and encrypting/decrypting it for a specific recipient
// public key.
package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/portkey-dev/portkey/internal/cryptoutil"
	"github.com/portkey-dev/portkey/internal/perr"
)

// Vault is an in-memory env-style key/value store plus the X25519
// keypair used for recipient-directed encryption. The keypair is
// persisted separately from the peer identity; see keyring.go.
type Vault struct {
	values map[string]string
	priv   [32]byte
	pub    [32]byte
}

// New wraps an existing key/value map with the supplied X25519
// keypair; it does not generate one.
func New(values map[string]string, priv, pub [32]byte) *Vault {
	if values == nil {
		values = map[string]string{}
	}
	return &Vault{values: values, priv: priv, pub: pub}
}

// LoadEnvFile parses path per the grammar: one declaration per
// non-empty, non-"#"-prefixed trimmed line, "KEY=VALUE"; a value
// wrapped in one matching pair of single or double quotes has that
// pair stripped. An empty key or a line without "=" fails with
// EnvParseError naming the 1-based line number.
func LoadEnvFile(path string, priv, pub [32]byte) (*Vault, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Wrap(perr.Io, "read env file "+path, err)
	}
	values, err := ParseEnv(string(b))
	if err != nil {
		return nil, err
	}
	return New(values, priv, pub), nil
}

// ParseEnv implements the grammar described on LoadEnvFile directly
// over a string, for use by tests and by ToEnvFormat round-trips.
func ParseEnv(content string) (map[string]string, error) {
	values := map[string]string{}
	for i, rawLine := range strings.Split(content, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, perr.New(perr.EnvParseError, fmt.Sprintf("line %d: missing '='", i+1))
		}
		key := strings.TrimSpace(line[:eq])
		if key == "" {
			return nil, perr.New(perr.EnvParseError, fmt.Sprintf("line %d: empty key", i+1))
		}
		value := line[eq+1:]
		values[key] = unquote(value)
	}
	return values, nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == '\'' && last == '\'' {
			return s[1 : len(s)-1]
		}
		if first == '"' && last == '"' {
			return strings.ReplaceAll(s[1:len(s)-1], "\\\"", "\"")
		}
	}
	return s
}

// ToEnvFormat renders the vault as deterministic, sorted KEY=VALUE
// lines, quoting values that contain whitespace or a quote character so
// a subsequent ParseEnv recovers the same map.
func (v *Vault) ToEnvFormat() string {
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		val := v.values[k]
		if needsQuoting(val) {
			val = "\"" + strings.ReplaceAll(val, "\"", "\\\"") + "\""
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(val)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func needsQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\"'#")
}

func (v *Vault) Get(key string) (string, bool) { val, ok := v.values[key]; return val, ok }
func (v *Vault) Set(key, value string)          { v.values[key] = value }
func (v *Vault) Remove(key string)              { delete(v.values, key) }
func (v *Vault) Len() int                        { return len(v.values) }
func (v *Vault) IsEmpty() bool                   { return len(v.values) == 0 }
func (v *Vault) PublicKey() [32]byte             { return v.pub }

// Request is the wire shape of a Secrets Request: the requester's
// public key, used by the responder to encrypt its vault.
type Request struct {
	PublicKey [32]byte `json:"public_key"`
}

// Response is the wire shape of a Secrets Response.
type Response struct {
	EphemeralPublicKey [32]byte `json:"ephemeral_public_key"`
	Nonce              [12]byte `json:"nonce"`
	Ciphertext         []byte   `json:"encrypted_data"`
	SenderPublicKey    [32]byte `json:"sender_public_key"`
}

// EncryptForPeer encrypts the vault's key/value map for the named
// recipient public key, returning a Secrets Response.
func (v *Vault) EncryptForPeer(peerPub []byte) (*Response, error) {
	if len(peerPub) != 32 {
		return nil, perr.New(perr.InvalidPublicKey, "recipient public key must be 32 bytes")
	}
	var recipient [32]byte
	copy(recipient[:], peerPub)

	plaintext, err := json.Marshal(v.values)
	if err != nil {
		return nil, perr.Wrap(perr.Serialization, "encode vault", err)
	}

	ephemeralPub, ciphertext, nonce, err := cryptoutil.EncryptForRecipient(recipient, plaintext)
	if err != nil {
		return nil, err
	}
	resp := &Response{EphemeralPublicKey: ephemeralPub, Ciphertext: ciphertext, SenderPublicKey: v.pub}
	copy(resp.Nonce[:], nonce)
	return resp, nil
}

// DecryptFromPeer decrypts a Secrets Response addressed to this
// vault's keypair and parses the resulting plaintext as a
// string-to-string JSON map.
func (v *Vault) DecryptFromPeer(resp *Response) (map[string]string, error) {
	plaintext, err := cryptoutil.DecryptFromSender(v.priv, resp.EphemeralPublicKey, resp.Ciphertext, resp.Nonce[:])
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return nil, perr.Wrap(perr.Serialization, "decode vault plaintext", err)
	}
	return out, nil
}
