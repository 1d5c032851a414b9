// Package channel adapts an unreliable-timing duplex byte channel (spec
// §4.3) — typically a net.Conn, but anything implementing
// io.ReadWriteCloser works — into exact-length reads and whole-buffer
// writes. It buffers short underlying reads internally via io.ReadFull
// and maps OS-level failures onto the errs taxonomy.
//
// A Channel is single-reader, single-writer: PacketStream.Split (C5)
// hands one direction to each half so Reader and Writer never race on
// the same Channel method.
package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/gosuda/xtransport/core/errs"
)

// deadlineSetter is implemented by net.Conn. The WebSocket adapter in
// wschannel.go does not implement it, so context deadlines are not
// applied to WebSocket-backed channels.
type deadlineSetter interface {
	SetDeadline(t time.Time) error
}

// Channel is the ByteChannel adapter of spec §4.3.
type Channel struct {
	rw io.ReadWriteCloser
}

// New wraps rw as a Channel. rw is typically a net.Conn.
func New(rw io.ReadWriteCloser) *Channel {
	return &Channel{rw: rw}
}

// ReadExact reads exactly n bytes or fails with a mapped errs sentinel.
// EOF before n bytes have been obtained yields errs.ErrClosed, per spec
// §4.3. If ctx carries a deadline and the underlying channel supports
// SetDeadline, the deadline is applied for the duration of the read and
// cleared afterward.
func (c *Channel) ReadExact(ctx context.Context, n int) ([]byte, error) {
	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}
	defer c.clearDeadline()

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return nil, mapIOError(err)
	}
	return buf, nil
}

// WriteAll writes every byte of b or fails with a mapped errs sentinel.
func (c *Channel) WriteAll(ctx context.Context, b []byte) error {
	if err := c.applyDeadline(ctx); err != nil {
		return err
	}
	defer c.clearDeadline()

	if _, err := c.rw.Write(b); err != nil {
		return mapIOError(err)
	}
	return nil
}

// ReadU32LE reads a little-endian u32, a small helper atop ReadExact
// used for the frame length header (spec §4.3).
func (c *Channel) ReadU32LE(ctx context.Context) (uint32, error) {
	b, err := c.ReadExact(ctx, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteU32LE writes v as a little-endian u32.
func (c *Channel) WriteU32LE(ctx context.Context, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return c.WriteAll(ctx, b[:])
}

// Close closes the underlying channel. Subsequent operations on either
// split half fail with errs.ErrClosed.
func (c *Channel) Close() error {
	return c.rw.Close()
}

func (c *Channel) applyDeadline(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	if ds, ok := c.rw.(deadlineSetter); ok {
		if err := ds.SetDeadline(deadline); err != nil {
			return mapIOError(err)
		}
	}
	return nil
}

func (c *Channel) clearDeadline() {
	if ds, ok := c.rw.(deadlineSetter); ok {
		ds.SetDeadline(time.Time{})
	}
}

// mapIOError classifies an underlying I/O error onto the errs taxonomy's
// ChannelError kinds (spec §7).
func mapIOError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.ErrClosed
	}
	if errors.Is(err, net.ErrClosed) {
		return errs.ErrClosed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.ErrTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return errs.ErrReset
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return errs.ErrRefused
	}

	return errs.ErrIO
}
