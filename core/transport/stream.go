// Package transport implements PacketStream (spec §4.5): the
// post-handshake framed transport. It performs the handshake
// synchronously in New, then exposes Split() to obtain independent
// Reader/Writer halves that share the underlying channel but never the
// same direction (spec §4.3, §5).
//
// Frame assembly is grounded in portal/core/cryptoops/handshaker.go's
// acquireBuffer/releaseBuffer/wipeMemory helpers around a
// github.com/valyala/bytebufferpool pool, generalized from a single
// secure-memory pool guarding one SecureConnection into a package-level
// pool that every Writer uses for frame assembly; Readers do not use it.
package transport

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"github.com/gosuda/xtransport/core/channel"
	"github.com/gosuda/xtransport/core/cryptoops"
	"github.com/gosuda/xtransport/core/errs"
	"github.com/gosuda/xtransport/core/handshake"
)

// State is the PacketStream state machine of spec §4.5: Open -> Open on
// every successful frame, Open -> Closed on any fatal error or explicit
// shutdown. Closed is terminal.
type State int32

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "open"
}

const frameHeaderSize = 4 // u32 LE length prefix

var bufferPool bytebufferpool.Pool

func acquireBuffer() *bytebufferpool.ByteBuffer {
	buf := bufferPool.Get()
	buf.Reset()
	return buf
}

func releaseBuffer(buf *bytebufferpool.ByteBuffer) {
	wipe(buf.B)
	bufferPool.Put(buf)
}

func wipe(b []byte) {
	b = b[:cap(b)]
	for i := range b {
		b[i] = 0
	}
}

// core holds everything a split Reader/Writer pair share: the channel,
// the two directed session keys, the size limit, and the stream's
// state. Dropping either half does not close the other (spec §4.5
// Splitting); only Transport.Close (or a fatal frame error) transitions
// core to Closed.
type core struct {
	ch               *channel.Channel
	encKey           [cryptoops.SessionKeySize]byte
	decKey           [cryptoops.SessionKeySize]byte
	maxPlaintextSize uint32
	role             handshake.Role
	state            atomic.Int32
}

func (c *core) isClosed() bool {
	return State(c.state.Load()) == StateClosed
}

func (c *core) markClosed() {
	c.state.Store(int32(StateClosed))
}

func (c *core) close() error {
	c.markClosed()
	cryptoops.Wipe(c.encKey[:])
	cryptoops.Wipe(c.decKey[:])
	return c.ch.Close()
}

// closeIfFatal centralizes the Open->Closed decision (spec §4.5 State
// machine, §7 Propagation policy) through errs.Fatal, so WritePacket and
// ReadPacket never have to re-derive which errors close the stream.
func (c *core) closeIfFatal(err error, readSide bool) error {
	if err != nil && errs.Fatal(err, readSide) {
		c.markClosed()
	}
	return err
}

// Transport is a confidential, authenticated packet transport over a
// ByteChannel, established via New and then split into independent
// Reader/Writer halves with Split.
type Transport struct {
	c *core
}

// New performs the handshake (spec §4.4) over rw and, on success,
// returns an established Transport. It returns once both sides have
// derived session keys (and verified MACs, if a PSK is configured).
func New(ctx context.Context, rw io.ReadWriteCloser, opts ...Option) (*Transport, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxPlaintextSize < 1 {
		return nil, fmt.Errorf("%w: max plaintext size must be >= 1", errs.ErrInvalidOperation)
	}

	ch := channel.New(rw)
	result, err := handshake.Run(ctx, ch, handshake.Config{PSK: options.PSK})
	if err != nil {
		ch.Close()
		return nil, err
	}

	c := &core{
		ch:               ch,
		maxPlaintextSize: options.MaxPlaintextSize,
		role:             result.Role,
	}
	c.encKey = result.EncKey
	c.decKey = result.DecKey
	result.Wipe()

	return &Transport{c: c}, nil
}

// Role returns the Role this side resolved to during the handshake.
func (t *Transport) Role() handshake.Role {
	return t.c.role
}

// State reports whether the transport is still Open.
func (t *Transport) State() State {
	return State(t.c.state.Load())
}

// Close shuts down the underlying channel and invalidates both split
// halves; further operations on either fail with errs.ErrClosed.
func (t *Transport) Close() error {
	return t.c.close()
}

// Split returns independent Reader and Writer handles sharing the
// underlying channel. Both halves point at the same shared core; each
// uses only its own direction's AEAD key and the length-bound
// configuration (spec §4.5 Splitting) — Split may be called
// more than once; every Reader shares one decrypt key, every Writer
// shares one encrypt key, but per spec §5 at most one reader and one
// writer may be driven concurrently.
func (t *Transport) Split() (*Reader, *Writer) {
	return &Reader{c: t.c}, &Writer{c: t.c}
}

// Writer is the write half of a split Transport (spec §4.5 encoding).
type Writer struct {
	c *core
}

// WritePacket encrypts and writes one application packet, given as
// already-serialized plaintext bytes.
// Plaintext larger than the configured MaxPlaintextSize is rejected with
// errs.ErrTooLarge without sending any bytes (non-fatal on write, per
// spec §7).
func (w *Writer) WritePacket(ctx context.Context, plaintext []byte) error {
	if w.c.isClosed() {
		return errs.ErrClosed
	}
	if uint32(len(plaintext)) > w.c.maxPlaintextSize {
		err := fmt.Errorf("%w: plaintext of %d bytes exceeds limit of %d", errs.ErrTooLarge, len(plaintext), w.c.maxPlaintextSize)
		return w.c.closeIfFatal(err, false)
	}

	nonce, err := cryptoops.CSPRNGBytes(cryptoops.XNonceSize)
	if err != nil {
		return w.c.closeIfFatal(fmt.Errorf("%w: %v", errs.ErrEncryption, err), false)
	}

	ciphertext, err := cryptoops.SealXChaCha20Poly1305(w.c.encKey[:], nonce, plaintext)
	if err != nil {
		return w.c.closeIfFatal(err, false)
	}

	frame := acquireBuffer()
	defer releaseBuffer(frame)

	frame.B = appendU32LE(frame.B, uint32(len(ciphertext)))
	frame.B = append(frame.B, nonce...)
	frame.B = append(frame.B, ciphertext...)

	return w.c.closeIfFatal(w.c.ch.WriteAll(ctx, frame.B), false)
}

// Reader is the read half of a split Transport (spec §4.5 decoding).
type Reader struct {
	c *core
}

// ReadPacket reads, authenticates, and decrypts one frame, returning its
// plaintext. Any failure here is fatal to the stream: the transport
// transitions to Closed before the error is returned (spec §4.5 State
// machine, §7 Propagation policy).
func (r *Reader) ReadPacket(ctx context.Context) ([]byte, error) {
	if r.c.isClosed() {
		return nil, errs.ErrClosed
	}

	frameLen, err := r.c.ch.ReadU32LE(ctx)
	if err != nil {
		return nil, r.c.closeIfFatal(err, true)
	}

	if frameLen == 0 || frameLen > r.c.maxPlaintextSize+uint32(cryptoops.TagSize) {
		err := fmt.Errorf("%w: frame length %d out of bounds", errs.ErrTooLarge, frameLen)
		return nil, r.c.closeIfFatal(err, true)
	}

	nonce, err := r.c.ch.ReadExact(ctx, cryptoops.XNonceSize)
	if err != nil {
		return nil, r.c.closeIfFatal(err, true)
	}

	ciphertext, err := r.c.ch.ReadExact(ctx, int(frameLen))
	if err != nil {
		return nil, r.c.closeIfFatal(err, true)
	}

	plaintext, err := cryptoops.OpenXChaCha20Poly1305(r.c.decKey[:], nonce, ciphertext)
	if err != nil {
		return nil, r.c.closeIfFatal(err, true)
	}

	return plaintext, nil
}

func appendU32LE(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
