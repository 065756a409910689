package eventstream

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	security := errors.Wrap(ErrSecurity, "port 25 is blocked")
	openErr := newOpenError(security)
	assert.Equal(t, OpenBadSecurity, openErr.Kind)
	assert.Equal(t, "open failed (BadSecurity): port 25 is blocked: security error", openErr.Error())
	assert.ErrorIs(t, openErr, ErrSecurity)

	assert.Equal(t, OpenBadArgs, newOpenError(errors.Wrap(ErrSyntax, "bad url")).Kind)

	assert.Equal(t, CloseBadReason, newCloseError(errors.Wrap(ErrSyntax, "too long")).Kind)
	assert.Equal(t, CloseBadCode, newCloseError(errors.Wrap(ErrInvalidAccess, "1001")).Kind)

	notOpen := &SendError{Kind: SendNotOpen}
	assert.Equal(t, "send failed: NotOpen", notOpen.Error())
	assert.Nil(t, notOpen.Unwrap())
}

func TestGuardHost(t *testing.T) {
	assert.NoError(t, guardHost(func() error { return nil }))

	err := guardHost(func() error { panic("boom") })
	assert.ErrorIs(t, err, ErrHostPanic)
	assert.Contains(t, err.Error(), "boom")
}
