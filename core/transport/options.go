package transport

import (
	"encoding/base64"
)

// DefaultMaxPlaintextSize is the default bound on a single packet's
// plaintext size (spec §3 Limits).
const DefaultMaxPlaintextSize uint32 = 65536

// Options configures a Transport (spec §6: new_transport(channel,
// options)).
type Options struct {
	// MaxPlaintextSize bounds the plaintext size of a single packet.
	// Must be >= 1; defaults to DefaultMaxPlaintextSize.
	MaxPlaintextSize uint32
	// PSK is the optional pre-shared secret authenticating the
	// handshake transcript. Must be >= handshake.MinPSKSize bytes when set.
	PSK []byte
}

// Option mutates Options; see WithMaxPlaintextSize, WithPSK, WithPSKString.
type Option func(*Options)

// defaultOptions returns Options with spec-mandated defaults applied.
func defaultOptions() Options {
	return Options{MaxPlaintextSize: DefaultMaxPlaintextSize}
}

// WithMaxPlaintextSize overrides the maximum plaintext size per packet.
func WithMaxPlaintextSize(n uint32) Option {
	return func(o *Options) { o.MaxPlaintextSize = n }
}

// WithPSK configures a raw-bytes pre-shared secret.
func WithPSK(psk []byte) Option {
	return func(o *Options) { o.PSK = psk }
}

// WithPSKString configures a pre-shared secret supplied as a string. Per
// spec §6 Configuration, implementations SHOULD first attempt base64
// decoding and fall back to raw UTF-8 bytes; this is the documented
// behavior of the source this spec was distilled from.
func WithPSKString(s string) Option {
	return func(o *Options) { o.PSK = DecodePSKString(s) }
}

// DecodePSKString implements the PSK string decoding rule of spec §6:
// try standard base64 first, fall back to the string's raw UTF-8 bytes.
func DecodePSKString(s string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded
	}
	return []byte(s)
}
