package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NewError(ErrCodeOverflow, "total would wrap", "sender", "0xab")

	assert.True(t, errors.Is(err, ErrOverflow))
	assert.False(t, errors.Is(err, ErrInvalidPeer))
	assert.Equal(t, "0xab", err.Details["sender"])
}

func TestErrorWrapped(t *testing.T) {
	err := fmt.Errorf("execute: %w", Errorf(ErrCodeInvalidPeer, "src_eid %d", 30101))

	assert.True(t, errors.Is(err, ErrInvalidPeer))
	assert.True(t, IsCode(err, ErrCodeInvalidPeer))

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrCodeInvalidPeer, code)
	assert.Equal(t, "execute: INVALID_PEER: src_eid 30101", err.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	_, ok := CodeOf(errors.New("boom"))
	assert.False(t, ok)
	assert.False(t, IsCode(nil, ErrCodeOverflow))
}

func TestErrorWithoutMessage(t *testing.T) {
	assert.Equal(t, "SLOT_CONSUMED", ErrSlotConsumed.Error())
}

func TestNewErrorOddDetails(t *testing.T) {
	err := NewError(ErrCodeInvalidAccount, "mint", "field", "mint", "dangling")
	assert.Len(t, err.Details, 1)
}
