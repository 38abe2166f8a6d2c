package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtocolError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ProtocolError
		want string
	}{
		{
			name: "strand_and_callable",
			err: &ProtocolError{
				Code:     ErrCodeRelayReentrancy,
				Message:  "relay already open",
				Strand:   "root",
				Callable: "inner",
			},
			want: "RELAY_REENTRANCY: relay already open (strand=root, callable=inner)",
		},
		{
			name: "strand_only",
			err: &ProtocolError{
				Code:    ErrCodeRelayNotOpen,
				Message: "no relay-path invocation in flight",
				Strand:  "root",
			},
			want: "RELAY_NOT_OPEN: no relay-path invocation in flight (strand=root)",
		},
		{
			name: "bare",
			err: &ProtocolError{
				Code:    ErrCodeResultNotPublished,
				Message: "callable completed without publishing",
			},
			want: "RESULT_NOT_PUBLISHED: callable completed without publishing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestProtocolErrorPredicates(t *testing.T) {
	reentrancy := &ProtocolError{Code: ErrCodeRelayReentrancy}
	notOpen := &ProtocolError{Code: ErrCodeRelayNotOpen}
	notPublished := &ProtocolError{Code: ErrCodeResultNotPublished}
	alreadyPublished := &ProtocolError{Code: ErrCodeRelayAlreadyPublished}

	assert.True(t, IsReentrancyError(reentrancy))
	assert.False(t, IsReentrancyError(notOpen))

	assert.True(t, IsNotOpenError(notOpen))
	assert.True(t, IsNotPublishedError(notPublished))
	assert.True(t, IsAlreadyPublishedError(alreadyPublished))

	for _, err := range []error{reentrancy, notOpen, notPublished, alreadyPublished} {
		assert.True(t, IsProtocolError(err))
	}

	assert.False(t, IsProtocolError(errors.New("plain")))
	assert.False(t, IsProtocolError(nil))
	assert.False(t, IsReentrancyError(nil))
}

func TestProtocolErrorPredicates_Wrapped(t *testing.T) {
	inner := &ProtocolError{Code: ErrCodeResultNotPublished, Message: "m"}
	wrapped := fmt.Errorf("dispatching step: %w", inner)

	assert.True(t, IsProtocolError(wrapped))
	assert.True(t, IsNotPublishedError(wrapped))
	assert.False(t, IsReentrancyError(wrapped))
}
