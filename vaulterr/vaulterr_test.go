package vaulterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	err := New(BadUid, "vault.Init", "uid must be 16 bytes")
	wrapped := fmt.Errorf("initializing: %w", err)
	require.True(t, Is(wrapped, BadUid))
	require.False(t, Is(wrapped, BadKey))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IoError, "metadata.Write", cause)
	require.ErrorIs(t, err, cause)
	require.True(t, Is(err, IoError))
}

func TestIsFalseForPlainError(t *testing.T) {
	require.False(t, Is(errors.New("plain"), NotFound))
}

func TestCategoryGrouping(t *testing.T) {
	require.Equal(t, CategoryIntegrity, AuthenticationFailed.Category())
	require.Equal(t, CategoryPrecondition, AlreadyExists.Category())
	require.Equal(t, CategoryResource, KdfFailure.Category())
}
