package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), KindUnknown},
		{"classified", New(KindNetwork, "fetch", errors.New("timeout")), KindNetwork},
		{"wrapped", fmt.Errorf("pull: %w", New(KindAuth, "fetch", nil)), KindAuth},
		{"busy sentinel", Wrap(ErrBusy, "publish"), KindBusy},
		{"smart merge sentinel", ErrNotAutoMergeable, KindNotAutoMergeable},
		{"no conflict sentinel", Wrap(ErrNoConflict, "resolve"), KindInvalid},
		{"unknown record", Wrapf(ErrRecordNotFound, "record %d", 9), KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindNetwork, "fetch", nil)))
	assert.False(t, IsRetryable(New(KindAuth, "fetch", nil)))
	assert.False(t, IsRetryable(errors.New("other")))
}

func TestErrorMessage(t *testing.T) {
	err := NewWithOutput(KindNetwork, "git fetch", errors.New("exit status 128"), "Could not resolve host: example.com")

	assert.Equal(t, "git fetch failed [network]: exit status 128: Could not resolve host: example.com", err.Error())
	assert.True(t, Is(Busy("publish"), ErrBusy))

	var target *Error
	assert.True(t, As(Wrapf(err, "attempt %d", 2), &target))
	assert.Equal(t, "git fetch", target.Op)
}
