package bridge

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyBufIsByteFaithful(t *testing.T) {
	payload := bytes.Repeat([]byte("tunnel-payload-"), 1024) // exceeds the 8 KiB buffer
	src := bytes.NewReader(payload)
	var dst bytes.Buffer

	n, err := copyBuf(&dst, src)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	assert.Equal(t, payload, dst.Bytes())
}

func TestCloseErrTreatsEOFAsSuccess(t *testing.T) {
	assert.NoError(t, closeErr(io.EOF))
	assert.NoError(t, closeErr(nil))
	assert.Error(t, closeErr(io.ErrClosedPipe))
}

func TestAddSentAndAddReceivedAreIndependentCounters(t *testing.T) {
	var stats Stats
	addSent(&stats, 100)
	addReceived(&stats, 40)
	addSent(&stats, 5)

	assert.EqualValues(t, 105, stats.BytesSent.Load())
	assert.EqualValues(t, 40, stats.BytesReceived.Load())
}

func TestAddBytesIgnoreNonPositiveAndNilStats(t *testing.T) {
	var stats Stats
	addSent(&stats, 0)
	addSent(&stats, -1)
	assert.EqualValues(t, 0, stats.BytesSent.Load())

	// Must not panic when no Stats is attached (the uninstrumented Bridge path).
	addSent(nil, 10)
	addReceived(nil, 10)
}

func TestActiveConnectionsTracksConcurrentBridges(t *testing.T) {
	var stats Stats
	stats.ActiveConnections.Add(1)
	stats.ActiveConnections.Add(1)
	stats.ActiveConnections.Add(-1)

	assert.EqualValues(t, 1, stats.ActiveConnections.Load())
}
