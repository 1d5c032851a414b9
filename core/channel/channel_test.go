package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/xtransport/core/errs"
)

func TestReadExactWriteAllRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ca := New(a)
	cb := New(b)

	payload := []byte("hello, channel")
	go func() {
		require.NoError(t, ca.WriteAll(context.Background(), payload))
	}()

	got, err := cb.ReadExact(context.Background(), len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestU32LERoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ca := New(a)
	cb := New(b)

	go func() {
		require.NoError(t, ca.WriteU32LE(context.Background(), 0xDEADBEEF))
	}()

	got, err := cb.ReadU32LE(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), got)
}

func TestReadExactOnClosedChannelIsClosed(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	a.Close()

	cb := New(b)
	_, err := cb.ReadExact(context.Background(), 4)
	assert.ErrorIs(t, err, errs.ErrClosed)
}

func TestReadExactDeadlineTimesOut(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	cb := New(b)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cb.ReadExact(ctx, 4)
	assert.ErrorIs(t, err, errs.ErrTimeout)
}

func TestCloseInvalidatesFurtherReads(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()

	cb := New(b)
	require.NoError(t, cb.Close())

	_, err := cb.ReadExact(context.Background(), 1)
	assert.Error(t, err)
}
