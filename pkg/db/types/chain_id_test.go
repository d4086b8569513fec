package dbtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainIDScan(t *testing.T) {
	var id ChainID
	require.NoError(t, id.Scan([]byte("18446744073709551615")))
	assert.True(t, id.Valid)
	assert.Equal(t, uint64(18446744073709551615), id.Uint64)

	require.NoError(t, id.Scan(int64(42)))
	assert.Equal(t, uint64(42), *id.Ptr())

	require.NoError(t, id.Scan(nil))
	assert.Nil(t, id.Ptr())

	require.Error(t, id.Scan("0x2a"))
	require.Error(t, id.Scan(int64(-1)))
	require.Error(t, id.Scan(3.5))
}

func TestChainIDValue(t *testing.T) {
	v, err := ChainID{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	n := uint64(42)
	v, err = NewChainID(&n).Value()
	require.NoError(t, err)
	assert.Equal(t, "42", v)
}
