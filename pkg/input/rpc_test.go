package input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRpcQueue_Flush(t *testing.T) {
	var q RpcQueue
	assert.Nil(t, q.Flush())

	q.Enqueue(1, 10, []byte("a"))
	q.Enqueue(2, 11, nil)
	assert.Equal(t, 2, q.Len())

	msgs := q.Flush()
	require.Len(t, msgs, 2)
	assert.Equal(t, int32(2), msgs[1].NetworkID)
	assert.Equal(t, 0, q.Len())
}

func TestRpcRegistry_Dispatch(t *testing.T) {
	r := NewRpcRegistry()

	var calls []int32
	require.NoError(t, r.Register(1, func(id int32, args []byte) error {
		calls = append(calls, id)
		return nil
	}))
	require.Error(t, r.Register(1, func(int32, []byte) error { return nil }))
	require.Error(t, r.Register(2, nil))

	require.NoError(t, r.Dispatch(RpcMessage{NetworkID: 5, MethodID: 1}))
	assert.Equal(t, []int32{5}, calls)

	err := r.Dispatch(RpcMessage{MethodID: 99})
	assert.True(t, errors.Is(err, ErrUnknownMethod))
}

func TestRpcRegistry_DispatchAllJoinsErrors(t *testing.T) {
	r := NewRpcRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register(1, func(int32, []byte) error { return boom }))
	require.NoError(t, r.Register(2, func(int32, []byte) error { return nil }))

	err := r.DispatchAll([]RpcMessage{{MethodID: 1}, {MethodID: 2}, {MethodID: 3}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, errors.Is(err, ErrUnknownMethod))
}
