package daemon

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portkey-dev/portkey/internal/perr"
	"github.com/portkey-dev/portkey/internal/secrets"
)

func TestWriteFramedReadFramedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := secrets.Request{PublicKey: [32]byte{1, 2, 3}}

	require.NoError(t, writeFramed(&buf, &req))

	var got secrets.Request
	require.NoError(t, readFramed(&buf, &got))
	assert.Equal(t, req, got)
}

func TestReadFramedRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 20*1024*1024)
	buf.Write(lenBuf[:])

	var v secrets.Request
	err := readFramed(&buf, &v)
	require.Error(t, err)
	assert.True(t, perr.Is(err, perr.StreamError))
}

func TestReadFramedRejectsTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 100)
	buf.Write(lenBuf[:])
	buf.Write([]byte("short"))

	var v secrets.Request
	err := readFramed(&buf, &v)
	require.Error(t, err)
}

func TestReadFramedRejectsMalformedJSON(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("not json")
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	buf.Write(lenBuf[:])
	buf.Write(body)

	var v secrets.Request
	err := readFramed(&buf, &v)
	require.Error(t, err)
	assert.True(t, perr.Is(err, perr.InvalidMessage))
}
