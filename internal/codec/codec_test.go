package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNestedValuesRoundTrip(t *testing.T) {
	in := map[string]any{
		"banned": false,
		"score":  7,
		"tags":   []any{"a", 2, true},
		"nested": map[string]any{"reason": "spam", "level": -3},
	}
	b, err := Marshal(in)
	require.NoError(t, err)

	out, err := DecodeMap(b)
	require.NoError(t, err)
	assert.Equal(t, false, out["banned"])
	assert.Equal(t, int64(7), out["score"])
	assert.Equal(t, []any{"a", int64(2), true}, out["tags"])
	assert.Equal(t, map[string]any{"reason": "spam", "level": int64(-3)}, out["nested"])
}

func TestDecodeMapTolerance(t *testing.T) {
	out, err := DecodeMap(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	b, _ := Marshal([]int{1, 2})
	out, err = DecodeMap(b)
	require.Error(t, err)
	assert.NotNil(t, out)

	out, err = DecodeMap([]byte{0xc1})
	require.Error(t, err)
	assert.NotNil(t, out)
}

func TestEnvelope(t *testing.T) {
	b, err := Success([]string{"x", "y"})
	require.NoError(t, err)
	env, err := OpenEnvelope(b)
	require.NoError(t, err)
	var got []string
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, []string{"x", "y"}, got)

	env, err = OpenEnvelope(Failure(errors.New("boom")))
	require.NoError(t, err)
	assert.False(t, env.OK)
	assert.ErrorIs(t, env.Decode(&got), ErrTaskFailed)

	env, err = OpenEnvelope(Failure(nil))
	require.NoError(t, err)
	assert.Equal(t, "unknown error", env.Error)
}

func TestAckIsTrue(t *testing.T) {
	var v bool
	require.NoError(t, Unmarshal(Ack, &v))
	assert.True(t, v)
}
