package daemon

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/portkey-dev/portkey/internal/perr"
	"github.com/portkey-dev/portkey/internal/protocol"
)

// readFramed reads a 4-byte big-endian length prefix followed by that
// many bytes of JSON, failing closed if the declared length exceeds
// protocol.SecretsMaxMessageBytes.
func readFramed(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return perr.Wrap(perr.StreamError, "read frame length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > protocol.SecretsMaxMessageBytes {
		return perr.New(perr.StreamError, "message too large")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return perr.Wrap(perr.StreamError, "read frame body", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return perr.Wrap(perr.InvalidMessage, "decode frame", err)
	}
	return nil
}

// writeFramed encodes v as JSON and writes it with a 4-byte big-endian
// length prefix.
func writeFramed(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return perr.Wrap(perr.Serialization, "encode frame", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return perr.Wrap(perr.StreamError, "write frame length", err)
	}
	if _, err := w.Write(body); err != nil {
		return perr.Wrap(perr.StreamError, "write frame body", err)
	}
	return nil
}
