package result

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesCode(t *testing.T) {
	err := Errorf(CallOrderInvalid, "image %d not waited", 1)
	assert.ErrorIs(t, err, ErrCallOrderInvalid)
	assert.NotErrorIs(t, err, ErrValidationFailure)

	wrapped := fmt.Errorf("release: %w", err)
	assert.ErrorIs(t, wrapped, ErrCallOrderInvalid)
	assert.Equal(t, CallOrderInvalid, Code(wrapped))
}

func TestCode(t *testing.T) {
	assert.Equal(t, Success, Code(nil))
	assert.Equal(t, RuntimeFailure, Code(errors.New("plain")))
	assert.Equal(t, InitializationFailed, ClientCode(ErrIncompatibleDisplay))
}

func TestStringAndFailed(t *testing.T) {
	assert.Equal(t, "XR_ERROR_SIZE_INSUFFICIENT", SizeInsufficient.String())
	assert.Equal(t, "XR_FRAME_DISCARDED", FrameDiscarded.String())
	assert.True(t, HandleInvalid.Failed())
	assert.False(t, FrameDiscarded.Failed())
}

func TestTrapSkipsFunctionUnsupported(t *testing.T) {
	var trapped []Result
	SetTrap(func(e *Error) { trapped = append(trapped, e.Code) })
	defer SetTrap(nil)

	_ = Errorf(FunctionUnsupported, "xrFoo")
	_ = Errorf(HandleInvalid, "bad handle")
	assert.Equal(t, []Result{HandleInvalid}, trapped)
}

func TestTwoCall(t *testing.T) {
	src := []string{"view", "local", "stage"}

	n, err := TwoCall(nil, src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	small := make([]string, 2)
	n, err = TwoCall(small, src)
	assert.ErrorIs(t, err, ErrSizeInsufficient)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"", ""}, small)

	full := make([]string, 3)
	n, err = TwoCall(full, src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, src, full)
}

func TestTwoCallString(t *testing.T) {
	n, err := TwoCallString(nil, "/user")
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	buf := make([]byte, 6)
	_, err = TwoCallString(buf, "/user")
	require.NoError(t, err)
	assert.Equal(t, "/user\x00", string(buf))
}
