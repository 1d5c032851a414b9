package channel

import (
	"io"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn this adapter needs, so tests
// can substitute a fake connection.
type wsConn interface {
	NextReader() (int, io.Reader, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// wsReadWriteCloser adapts a gorilla/websocket connection into
// io.ReadWriteCloser, so it can back a Channel exactly like a net.Conn
// does. Each WriteMessage call sends one binary WebSocket frame; reads
// transparently move to the next message once the current one is
// exhausted, so callers see one continuous byte stream as spec §1
// requires ("any reliable byte-ordered duplex channel").
//
// Grounded in portal/utils/wsstream/wsstream.go's WsStream, generalized
// into the ByteChannel adapter's second backing alongside net.Conn.
type wsReadWriteCloser struct {
	conn          wsConn
	currentReader io.Reader
	readMu        sync.Mutex
	writeMu       sync.Mutex
}

// NewWebSocketConn adapts a *websocket.Conn into an io.ReadWriteCloser,
// suitable for passing directly to transport.New so the handshake and
// PacketStream run over a WebSocket exactly as they would over a
// net.Conn.
func NewWebSocketConn(conn *websocket.Conn) io.ReadWriteCloser {
	return &wsReadWriteCloser{conn: conn}
}

// NewWebSocket wraps a *websocket.Conn as a Channel directly.
func NewWebSocket(conn *websocket.Conn) *Channel {
	return New(NewWebSocketConn(conn))
}

func (w *wsReadWriteCloser) Read(p []byte) (int, error) {
	w.readMu.Lock()
	defer w.readMu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}

	for {
		if w.currentReader == nil {
			_, reader, err := w.conn.NextReader()
			if err != nil {
				return 0, wsErrToEOF(err)
			}
			w.currentReader = reader
		}

		n, err := w.currentReader.Read(p)
		if err == io.EOF {
			w.currentReader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			return n, wsErrToEOF(err)
		}
		return n, nil
	}
}

func (w *wsReadWriteCloser) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, wsErrToEOF(err)
	}
	return len(p), nil
}

func (w *wsReadWriteCloser) Close() error {
	return w.conn.Close()
}

// wsErrToEOF converts a gorilla/websocket close error into io.EOF so the
// Channel's generic error mapping turns it into errs.ErrClosed, the same
// way a net.Conn read past EOF would.
func wsErrToEOF(err error) error {
	if err != nil && strings.HasPrefix(err.Error(), "websocket: close ") {
		return io.EOF
	}
	return err
}
