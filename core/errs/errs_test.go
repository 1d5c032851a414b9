package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfClassifiesEachFamily(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{ErrAuthentication, KindCrypto},
		{ErrDecryption, KindCrypto},
		{ErrTooLarge, KindMessage},
		{ErrDeserialization, KindMessage},
		{ErrClosed, KindChannel},
		{ErrTimeout, KindChannel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), tc.err)
	}
}

func TestKindOfFollowsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("read frame: %w", ErrDecryption)
	assert.Equal(t, KindCrypto, KindOf(wrapped))
}

func TestKindOfUnknownError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("not in the taxonomy")))
}

func TestKindStringValues(t *testing.T) {
	assert.Equal(t, "crypto", KindCrypto.String())
	assert.Equal(t, "message", KindMessage.String())
	assert.Equal(t, "channel", KindChannel.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestFatalCryptoErrors(t *testing.T) {
	assert.True(t, Fatal(ErrDecryption, true))
	assert.True(t, Fatal(ErrDecryption, false))
	assert.True(t, Fatal(ErrAuthentication, true))
	assert.False(t, Fatal(ErrKeyExchange, true), "key-exchange failures outside Decryption/Authentication are not fatal frame errors")
}

func TestFatalTooLargeDependsOnReadSide(t *testing.T) {
	assert.True(t, Fatal(ErrTooLarge, true), "an oversize frame on read leaves the framing unrecoverable")
	assert.False(t, Fatal(ErrTooLarge, false), "a rejected oversize write must not close the stream")
}

func TestFatalChannelErrorsAlwaysFatal(t *testing.T) {
	assert.True(t, Fatal(ErrClosed, false))
	assert.True(t, Fatal(ErrTimeout, true))
	assert.True(t, Fatal(ErrReset, false))
	assert.True(t, Fatal(ErrRefused, false))
	assert.True(t, Fatal(ErrIO, false))
}

func TestFatalUnknownErrorIsNotFatal(t *testing.T) {
	assert.False(t, Fatal(fmt.Errorf("not in the taxonomy"), true))
}
