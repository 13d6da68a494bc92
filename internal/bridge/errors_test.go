package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBridgeError_Error(t *testing.T) {
	err := NewTimeoutError("ads", 7, nil)
	assert.Contains(t, err.Error(), "TIMEOUT")
	assert.Contains(t, err.Error(), "domain=ads, id=7")

	cause := errors.New("jni exception")
	err = NewNativeError("ads", 3, cause)
	assert.Contains(t, err.Error(), "NATIVE_ERROR")
	assert.Contains(t, err.Error(), "jni exception")
	assert.ErrorIs(t, err, cause)
}

func TestBridgeError_DomainOnly(t *testing.T) {
	err := NewChannelBusyError("ads")
	assert.Contains(t, err.Error(), "(domain=ads)")
	assert.NotContains(t, err.Error(), "id=")
}

func TestIsHelpers(t *testing.T) {
	cases := []struct {
		err   error
		check func(error) bool
		code  ErrorCode
	}{
		{NewAlreadyInitializedError("cls"), IsAlreadyInitialized, ErrCodeAlreadyInitialized},
		{NewNativeUnavailableError("ads", nil), IsNativeUnavailable, ErrCodeNativeUnavailable},
		{NewInvalidPayloadError("ads", errors.New("bad")), IsInvalidPayload, ErrCodeInvalidPayload},
		{NewChannelBusyError("ads"), IsChannelBusy, ErrCodeChannelBusy},
		{NewTimeoutError("ads", 1, nil), IsTimeout, ErrCodeTimeout},
		{NewNativeError("ads", 1, errors.New("x")), IsNativeError, ErrCodeNativeError},
		{NewUnmatchedCallbackError("ads", 9), IsUnmatchedCallback, ErrCodeUnmatchedCallback},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.True(t, tc.check(tc.err))
			assert.Equal(t, tc.code, CodeOf(tc.err))

			// Still recognised through wrapping.
			wrapped := fmt.Errorf("caller: %w", tc.err)
			assert.True(t, tc.check(wrapped))
			assert.Equal(t, tc.code, CodeOf(wrapped))
		})
	}
}

func TestIsHelpers_ForeignErrors(t *testing.T) {
	plain := errors.New("plain")
	assert.False(t, IsTimeout(plain))
	assert.False(t, IsTimeout(nil))
	assert.Equal(t, ErrorCode(""), CodeOf(plain))
	assert.False(t, IsTimeout(NewNativeError("ads", 1, nil)))
}
