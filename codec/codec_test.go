package codec_test

import (
	"testing"

	"github.com/aacfactory/sharedcache/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripMap(t *testing.T) {
	data, err := codec.Default.Pack(map[string]any{"n": float64(1)})
	require.NoError(t, err)
	value, err := codec.Default.Unpack(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(1)}, value)
}

func TestRoundTripString(t *testing.T) {
	data, err := codec.Default.Pack("a" + repeat("a", 199))
	require.NoError(t, err)
	value, err := codec.Default.Unpack(data)
	require.NoError(t, err)
	assert.Equal(t, 200, len(value.(string)))
}

func TestUnpackInvalidBytesErrors(t *testing.T) {
	_, err := codec.Default.Unpack([]byte("not json"))
	assert.Error(t, err)
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
