package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := Transport("info.userFills", errors.New("connection reset"))
	wrapped := fmt.Errorf("recovery: %w", base)

	assert.Equal(t, KindTransport, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindTransport))
	assert.False(t, IsKind(wrapped, KindValidation))
	assert.False(t, IsKind(nil, KindTransport))
}

func TestE_ErrorAndUnwrap(t *testing.T) {
	sentinel := errors.New("not found")
	err := NotFound("scale.cancel", "scale order abc", sentinel)

	assert.Equal(t, "scale.cancel: not_found: scale order abc: not found", err.Error())
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "", string(KindOf(errors.New("plain"))))
}
