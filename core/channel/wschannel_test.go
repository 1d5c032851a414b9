package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/xtransport/core/errs"
)

// fakeWsConn implements wsConn without a real network connection, so the
// framing/error-mapping logic in wsReadWriteCloser can be exercised
// directly, the way cryptoops/handshaker_test.go's in-memory pipeConn
// exercises its handshake without a real listener.
type fakeWsConn struct {
	readQueue []io.Reader
	readErr   error
	writes    [][]byte
	closed    bool
}

func (f *fakeWsConn) NextReader() (int, io.Reader, error) {
	if len(f.readQueue) == 0 {
		if f.readErr != nil {
			return 0, nil, f.readErr
		}
		return 0, nil, io.EOF
	}
	r := f.readQueue[0]
	f.readQueue = f.readQueue[1:]
	return websocket.BinaryMessage, r, nil
}

func (f *fakeWsConn) WriteMessage(messageType int, data []byte) error {
	cp := append([]byte(nil), data...)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeWsConn) Close() error {
	f.closed = true
	return nil
}

func TestWebSocketChannelWriteSendsOneBinaryFrame(t *testing.T) {
	fake := &fakeWsConn{}
	ch := New(&wsReadWriteCloser{conn: fake})

	require.NoError(t, ch.WriteAll(context.Background(), []byte("ping")))
	require.Len(t, fake.writes, 1)
	assert.Equal(t, []byte("ping"), fake.writes[0])
}

func TestWebSocketChannelReadSpansMultipleMessages(t *testing.T) {
	fake := &fakeWsConn{readQueue: []io.Reader{
		bytes.NewReader([]byte("he")),
		bytes.NewReader([]byte("llo")),
	}}
	ch := New(&wsReadWriteCloser{conn: fake})

	got, err := ch.ReadExact(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestWebSocketCloseErrorMapsToChannelClosed(t *testing.T) {
	fake := &fakeWsConn{readErr: errors.New("websocket: close 1000 (normal)")}
	ch := New(&wsReadWriteCloser{conn: fake})

	_, err := ch.ReadExact(context.Background(), 1)
	assert.ErrorIs(t, err, errs.ErrClosed)
}

func TestWebSocketCloseCallsUnderlyingConn(t *testing.T) {
	fake := &fakeWsConn{}
	ch := New(&wsReadWriteCloser{conn: fake})

	require.NoError(t, ch.Close())
	assert.True(t, fake.closed)
}

func TestNewWebSocketConnSatisfiesReadWriteCloser(t *testing.T) {
	fake := &fakeWsConn{}
	var rw io.ReadWriteCloser = &wsReadWriteCloser{conn: fake}

	_, err := rw.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())
	assert.True(t, fake.closed)
}
