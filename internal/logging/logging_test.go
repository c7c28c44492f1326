package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsBothModes(t *testing.T) {
	prod, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, prod)
	defer prod.Sync()

	dev, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, dev)
	defer dev.Sync()
}

func TestNamedTagsComponent(t *testing.T) {
	base, err := New(false)
	require.NoError(t, err)
	defer base.Sync()

	sugared := Named(base, "daemon")
	assert.NotNil(t, sugared)
}
