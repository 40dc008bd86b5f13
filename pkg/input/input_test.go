package input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput(tick int64, player int32) Input {
	return Input{
		Tick:   tick,
		Player: player,
		Data: []ObjectInput{
			{ObjectID: 1, Payload: []byte{0x01, 0x02}},
			{ObjectID: 7, Payload: []byte{}},
			{ObjectID: 9, Payload: []byte("bomb")},
		},
	}
}

func TestInput_EncodeDecode(t *testing.T) {
	in := sampleInput(-3, 2)

	got, err := DecodeInput(EncodeInput(in))
	require.NoError(t, err)
	assert.Equal(t, in.Tick, got.Tick)
	assert.Equal(t, in.Player, got.Player)
	require.Len(t, got.Data, 3)
	assert.Equal(t, []byte("bomb"), got.Data[2].Payload)
	assert.Empty(t, got.Data[1].Payload)
}

func TestInput_Layout(t *testing.T) {
	b := EncodeInput(Input{Tick: 1, Player: 2})
	// 8 字节 tick + 4 字节 player + 1 字节计数
	assert.Len(t, b, 13)
}

func TestInput_DecodeTruncated(t *testing.T) {
	b := EncodeInput(sampleInput(5, 1))

	for _, cut := range []int{0, 4, 12, len(b) - 1} {
		_, err := DecodeInput(b[:cut])
		assert.True(t, errors.Is(err, ErrTruncated), "cut=%d err=%v", cut, err)
	}
}

func TestInput_DecodeTrailingBytes(t *testing.T) {
	b := append(EncodeInput(sampleInput(5, 1)), 0xff)
	_, err := DecodeInput(b)
	assert.Error(t, err)
}

func TestInput_Find(t *testing.T) {
	in := sampleInput(1, 1)
	payload, ok := in.Find(9)
	require.True(t, ok)
	assert.Equal(t, []byte("bomb"), payload)

	_, ok = in.Find(100)
	assert.False(t, ok)
}

func TestTickPackage_Merge(t *testing.T) {
	p := NewTickPackage(10)

	assert.True(t, p.Merge(sampleInput(10, 3)))
	assert.True(t, p.Merge(sampleInput(10, 1)))
	assert.True(t, p.Merge(sampleInput(10, 2)))
	assert.False(t, p.Merge(sampleInput(11, 4)), "帧号不一致")

	replaced := Input{Tick: 10, Player: 2}
	assert.True(t, p.Merge(replaced))

	require.Len(t, p.Inputs, 3)
	for i, player := range []int32{1, 2, 3} {
		assert.Equal(t, player, p.Inputs[i].Player)
	}
	got, ok := p.InputFor(2)
	require.True(t, ok)
	assert.Empty(t, got.Data)
}

func TestTickPackage_EncodeDecode(t *testing.T) {
	p := NewTickPackage(42)
	p.Merge(sampleInput(42, 1))
	p.Merge(sampleInput(42, 2))
	p.AddRpcs([]RpcMessage{{NetworkID: 5, MethodID: 3, Args: []byte{9}}})

	got, err := DecodeTickPackage(EncodeTickPackage(p))
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Tick)
	require.Len(t, got.Inputs, 2)
	require.Len(t, got.Rpcs, 1)
	assert.Equal(t, uint32(3), got.Rpcs[0].MethodID)
	assert.Equal(t, []byte{9}, got.Rpcs[0].Args)
}

func TestBatch_EncodeDecode(t *testing.T) {
	b := Batch{Inputs: []Input{sampleInput(1, 4), sampleInput(2, 4)}}

	got, err := DecodeBatch(EncodeBatch(b))
	require.NoError(t, err)
	require.Len(t, got.Inputs, 2)
	assert.Equal(t, int64(2), got.Inputs[1].Tick)
	assert.Empty(t, got.Rpcs)
}

func TestBatch_DecodeGarbage(t *testing.T) {
	_, err := DecodeBatch([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
