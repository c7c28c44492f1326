// Package perr defines the unified error taxonomy used across portkey.
package perr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch on failure category
// without string-matching messages.
type Kind int

const (
	Unknown Kind = iota
	NetworkInitialization
	PeerNotFound
	ConnectionFailed
	StreamError
	TransportError
	DialError
	ProtocolNegotiation
	InvalidMessage
	UnsupportedVersion
	PortBindFailed
	TunnelNotEstablished
	ProxyError
	EncryptionFailed
	DecryptionFailed
	InvalidPublicKey
	KeyringError
	EnvParseError
	ConfigError
	InvalidPeerId
	Io
	Serialization
)

func (k Kind) String() string {
	switch k {
	case NetworkInitialization:
		return "network_initialization"
	case PeerNotFound:
		return "peer_not_found"
	case ConnectionFailed:
		return "connection_failed"
	case StreamError:
		return "stream_error"
	case TransportError:
		return "transport_error"
	case DialError:
		return "dial_error"
	case ProtocolNegotiation:
		return "protocol_negotiation"
	case InvalidMessage:
		return "invalid_message"
	case UnsupportedVersion:
		return "unsupported_version"
	case PortBindFailed:
		return "port_bind_failed"
	case TunnelNotEstablished:
		return "tunnel_not_established"
	case ProxyError:
		return "proxy_error"
	case EncryptionFailed:
		return "encryption_failed"
	case DecryptionFailed:
		return "decryption_failed"
	case InvalidPublicKey:
		return "invalid_public_key"
	case KeyringError:
		return "keyring_error"
	case EnvParseError:
		return "env_parse_error"
	case ConfigError:
		return "config_error"
	case InvalidPeerId:
		return "invalid_peer_id"
	case Io:
		return "io"
	case Serialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can use errors.As
// to recover the classification without parsing message text.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.kind == kind
	}
	return false
}
