// Package errs collects the structured error kinds surfaced across
// xtransport's public API (codec, cryptoops, channel, handshake, transport).
//
// The taxonomy stays flat by design: a tagged sum of sentinel errors is
// enough to let callers dispatch on errors.Is without walking a class
// hierarchy. No error here ever carries secret material in its message.
package errs

import "errors"

// Crypto errors: anything originating in an AEAD, KDF, or DH primitive.
var (
	ErrAuthentication     = errors.New("errs: authentication failed")
	ErrKeyExchange        = errors.New("errs: key exchange failed")
	ErrInvalidKeyMaterial = errors.New("errs: invalid key material")
	ErrKeyDerivation      = errors.New("errs: key derivation failed")
	ErrEncryption         = errors.New("errs: encryption failed")
	ErrDecryption         = errors.New("errs: decryption failed")
)

// Message errors: framing and serialization of application payloads.
var (
	ErrTooLarge        = errors.New("errs: message exceeds size limit")
	ErrDeserialization = errors.New("errs: deserialization failed")
	ErrInvalidFormat   = errors.New("errs: invalid wire format")
)

// Channel errors: the ByteChannel adapter and anything it surfaces.
var (
	ErrClosed           = errors.New("errs: channel closed")
	ErrReset            = errors.New("errs: connection reset")
	ErrRefused          = errors.New("errs: connection refused")
	ErrTimeout          = errors.New("errs: operation timed out")
	ErrHandshakeFailed  = errors.New("errs: handshake failed")
	ErrInvalidOperation = errors.New("errs: invalid operation")
	ErrIO               = errors.New("errs: io error")
)

// Kind identifies which of the three error families an error belongs to,
// for callers that want to branch on category rather than on the exact
// sentinel (e.g. metrics tagging).
type Kind int

const (
	KindUnknown Kind = iota
	KindCrypto
	KindMessage
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindCrypto:
		return "crypto"
	case KindMessage:
		return "message"
	case KindChannel:
		return "channel"
	default:
		return "unknown"
	}
}

var kindOf = map[error]Kind{
	ErrAuthentication:     KindCrypto,
	ErrKeyExchange:        KindCrypto,
	ErrInvalidKeyMaterial: KindCrypto,
	ErrKeyDerivation:      KindCrypto,
	ErrEncryption:         KindCrypto,
	ErrDecryption:         KindCrypto,

	ErrTooLarge:        KindMessage,
	ErrDeserialization: KindMessage,
	ErrInvalidFormat:   KindMessage,

	ErrClosed:           KindChannel,
	ErrReset:            KindChannel,
	ErrRefused:          KindChannel,
	ErrTimeout:          KindChannel,
	ErrHandshakeFailed:  KindChannel,
	ErrInvalidOperation: KindChannel,
	ErrIO:               KindChannel,
}

// KindOf returns the taxonomy Kind for err, checking errors.Is against
// every sentinel in the taxonomy so wrapped errors classify correctly.
func KindOf(err error) Kind {
	for sentinel, kind := range kindOf {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// Fatal reports whether err should transition a Transport to Closed, per
// spec §7 and §4.5's state machine:
//   - CryptoError::Decryption and CryptoError::Authentication are always
//     fatal;
//   - MessageError::TooLarge is fatal only when it occurs on a read (the
//     framing becomes unknown), which callers signal by passing
//     readSide=true — a rejected oversize write leaves the stream open;
//   - any ChannelError is fatal, since it means the underlying byte
//     channel itself is no longer usable.
func Fatal(err error, readSide bool) bool {
	switch KindOf(err) {
	case KindCrypto:
		return errors.Is(err, ErrDecryption) || errors.Is(err, ErrAuthentication)
	case KindMessage:
		return errors.Is(err, ErrTooLarge) && readSide
	case KindChannel:
		return true
	default:
		return false
	}
}
