// Package handshake implements the HandshakeEngine of spec §4.4: a
// four-phase, role-resolving Diffie-Hellman exchange that both peers
// drive symmetrically, with no pre-assigned client/server role,
// optional pre-shared-key authentication, and a precisely ordered
// transcript.
//
// Grounded in relaydns/core/cryptoops/handshaker.go (nonce/ephemeral
// exchange over a length-prefixed channel, HKDF-derived per-direction
// keys) and portal/core/cryptoops/handshaker.go (the ClientHandshake /
// ServerHandshake split and constant-time MAC comparison), generalized
// from the teacher's fixed client/server roles into the spec's symmetric
// nonce-resolved roles.
package handshake

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gosuda/xtransport/core/channel"
	"github.com/gosuda/xtransport/core/cryptoops"
	"github.com/gosuda/xtransport/core/errs"
)

// Role is derived from nonce comparison during the handshake; it is
// never configured (spec §3 Data Model).
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// MinPSKSize is the minimum accepted PSK length (spec §3 Data Model: "PSK:
// optional >= 16-byte shared secret").
const MinPSKSize = 16

// NonceSize is the size of the role-resolution nonce exchanged in phase 1.
const NonceSize = 32

// Config carries the local side's handshake options.
type Config struct {
	// PSK is the optional pre-shared secret. If non-nil, it must be at
	// least MinPSKSize bytes.
	PSK []byte
}

// Result is the outcome of a successful handshake: a resolved Role and
// the two 32-byte per-direction session keys (spec §3: SessionKey).
type Result struct {
	Role   Role
	EncKey [cryptoops.SessionKeySize]byte
	DecKey [cryptoops.SessionKeySize]byte
}

// Wipe zeroes both session keys. Callers that fail to establish a
// Transport (or that tear one down) should call this once the keys are
// no longer needed.
func (r *Result) Wipe() {
	cryptoops.Wipe(r.EncKey[:])
	cryptoops.Wipe(r.DecKey[:])
}

const (
	hkdfInfoEnc = "enc"
	hkdfInfoDec = "dec"

	pskPresent byte = 1
	pskAbsent  byte = 0
)

// Run drives the full four-phase handshake over ch and returns the
// established Result, or a fatal error. There is no retry within the
// state machine (spec §4.4 Termination states): on any error the caller
// must treat the channel as unusable and close it.
func Run(ctx context.Context, ch *channel.Channel, cfg Config) (*Result, error) {
	if cfg.PSK != nil && len(cfg.PSK) < MinPSKSize {
		return nil, fmt.Errorf("%w: psk must be at least %d bytes", errs.ErrInvalidKeyMaterial, MinPSKSize)
	}

	// Phase 1: nonce exchange and role resolution.
	localNonce, err := cryptoops.CSPRNGBytes(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", errs.ErrKeyExchange, err)
	}
	if err := ch.WriteAll(ctx, localNonce); err != nil {
		return nil, err
	}
	peerNonce, err := ch.ReadExact(ctx, NonceSize)
	if err != nil {
		return nil, err
	}

	role := RoleResponder
	if bytes.Compare(localNonce, peerNonce) > 0 {
		role = RoleInitiator
	}

	// Phase 2: ephemeral key exchange. Ordering is observable: the
	// initiator must send before it reads, or both peers block.
	local, err := cryptoops.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: generate ephemeral keypair: %v", errs.ErrKeyExchange, err)
	}
	defer local.Wipe()

	var initiatorPub, responderPub []byte
	var peerPub []byte
	if role == RoleInitiator {
		if err := ch.WriteAll(ctx, local.Public[:]); err != nil {
			return nil, err
		}
		peerPub, err = ch.ReadExact(ctx, cryptoops.X25519KeySize)
		if err != nil {
			return nil, err
		}
		initiatorPub, responderPub = local.Public[:], peerPub
	} else {
		peerPub, err = ch.ReadExact(ctx, cryptoops.X25519KeySize)
		if err != nil {
			return nil, err
		}
		if err := ch.WriteAll(ctx, local.Public[:]); err != nil {
			return nil, err
		}
		initiatorPub, responderPub = peerPub, local.Public[:]
	}

	// Phase 3: transcript, shared secret, and optional PSK MAC.
	transcript := make([]byte, 0, cryptoops.X25519KeySize*2)
	transcript = append(transcript, initiatorPub...)
	transcript = append(transcript, responderPub...)
	transcriptHash := cryptoops.SHA256(transcript)

	sharedSecret, err := cryptoops.ECDH(local.Private[:], peerPub)
	if err != nil {
		return nil, err
	}
	defer cryptoops.Wipe(sharedSecret)

	// PSK-presence agreement (spec §4.4 Ambiguity, §9 Open Question;
	// resolved per SPEC_FULL.md C.1 as a REQUIRED, wire-visible check so a
	// one-sided PSK configuration never silently desynchronizes the
	// stream instead of failing cleanly).
	localHasPSK := cfg.PSK != nil
	peerHasPSK, err := exchangePresenceFlag(ctx, ch, role, localHasPSK)
	if err != nil {
		return nil, err
	}
	if localHasPSK != peerHasPSK {
		return nil, fmt.Errorf("%w: psk configuration mismatch between peers", errs.ErrAuthentication)
	}

	if localHasPSK {
		localMAC := cryptoops.HMACSHA256(cfg.PSK, transcript)
		peerMAC, err := exchangeMAC(ctx, ch, role, localMAC)
		if err != nil {
			return nil, err
		}
		if !cryptoops.ConstantTimeEqual(localMAC, peerMAC) {
			return nil, fmt.Errorf("%w: transcript mac mismatch", errs.ErrAuthentication)
		}
	}

	// Phase 4: key derivation.
	kInit, err := cryptoops.HKDFSHA256(sharedSecret, transcriptHash[:], []byte(hkdfInfoEnc), cryptoops.SessionKeySize)
	if err != nil {
		return nil, err
	}
	kResp, err := cryptoops.HKDFSHA256(sharedSecret, transcriptHash[:], []byte(hkdfInfoDec), cryptoops.SessionKeySize)
	if err != nil {
		return nil, err
	}

	result := &Result{Role: role}
	if role == RoleInitiator {
		copy(result.EncKey[:], kInit)
		copy(result.DecKey[:], kResp)
	} else {
		copy(result.EncKey[:], kResp)
		copy(result.DecKey[:], kInit)
	}
	cryptoops.Wipe(kInit)
	cryptoops.Wipe(kResp)

	return result, nil
}

// exchangePresenceFlag exchanges a single presence byte with the wire
// ordering rule used throughout the handshake: the initiator writes
// before it reads.
func exchangePresenceFlag(ctx context.Context, ch *channel.Channel, role Role, localHasPSK bool) (bool, error) {
	localByte := pskAbsent
	if localHasPSK {
		localByte = pskPresent
	}

	var peerByte []byte
	var err error
	if role == RoleInitiator {
		if err := ch.WriteAll(ctx, []byte{localByte}); err != nil {
			return false, err
		}
		peerByte, err = ch.ReadExact(ctx, 1)
		if err != nil {
			return false, err
		}
	} else {
		peerByte, err = ch.ReadExact(ctx, 1)
		if err != nil {
			return false, err
		}
		if err := ch.WriteAll(ctx, []byte{localByte}); err != nil {
			return false, err
		}
	}

	switch peerByte[0] {
	case pskPresent:
		return true, nil
	case pskAbsent:
		return false, nil
	default:
		return false, fmt.Errorf("%w: invalid psk-presence byte", errs.ErrHandshakeFailed)
	}
}

// exchangeMAC exchanges the transcript MAC with the same wire ordering
// rule: initiator writes then reads, responder reads then writes.
func exchangeMAC(ctx context.Context, ch *channel.Channel, role Role, localMAC []byte) ([]byte, error) {
	if role == RoleInitiator {
		if err := ch.WriteAll(ctx, localMAC); err != nil {
			return nil, err
		}
		return ch.ReadExact(ctx, cryptoops.Sha256Size)
	}
	peerMAC, err := ch.ReadExact(ctx, cryptoops.Sha256Size)
	if err != nil {
		return nil, err
	}
	if err := ch.WriteAll(ctx, localMAC); err != nil {
		return nil, err
	}
	return peerMAC, nil
}
