package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestReader_Sequence(t *testing.T) {
	var b []byte
	b = protowire.AppendFixed64(b, 1<<40)
	b = protowire.AppendFixed32(b, 7)
	b = protowire.AppendVarint(b, 300)
	b = protowire.AppendBytes(b, []byte("abc"))
	b = protowire.AppendString(b, "玩家")

	r := NewReader(b)
	assert.Equal(t, uint64(1<<40), r.Fixed64())
	assert.Equal(t, uint32(7), r.Fixed32())
	assert.Equal(t, uint64(300), r.Varint())
	assert.Equal(t, []byte("abc"), r.Bytes())
	assert.Equal(t, "玩家", r.String())
	assert.Zero(t, r.Remaining())
	require.NoError(t, r.Done())
}

func TestReader_BytesIsCopy(t *testing.T) {
	b := protowire.AppendBytes(nil, []byte{1, 2})
	got := NewReader(b).Bytes()
	b[1] = 9
	assert.Equal(t, []byte{1, 2}, got)
}

func TestReader_Truncated(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	assert.Zero(t, r.Fixed32())
	assert.ErrorIs(t, r.Err(), ErrTruncated)

	// 出错后的读取一律返回零值
	assert.Zero(t, r.Varint())
	assert.Nil(t, r.Bytes())
	assert.ErrorIs(t, r.Done(), ErrTruncated)
}

func TestReader_CountBeyondRemaining(t *testing.T) {
	r := NewReader(protowire.AppendVarint(nil, 50))
	assert.Zero(t, r.Count())
	assert.ErrorIs(t, r.Err(), ErrTruncated)
}

func TestReader_TrailingBytes(t *testing.T) {
	b := protowire.AppendVarint(nil, 1)
	b = append(b, 0xff)
	r := NewReader(b)
	assert.Equal(t, uint64(1), r.Varint())
	err := r.Done()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTruncated)
}
