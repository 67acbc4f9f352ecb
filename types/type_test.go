package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTypeCaseInsensitive(t *testing.T) {
	ty, err := ParseType("INT")
	require.NoError(t, err)
	require.Equal(t, IntType, ty)

	ty, err = ParseType("String")
	require.NoError(t, err)
	require.Equal(t, StringType, ty)

	_, err = ParseType("bool")
	require.Error(t, err)
}

func TestTypeLen(t *testing.T) {
	require.Equal(t, IntSize, IntType.Len())
	require.Equal(t, StringSize, StringType.Len())
}

func TestFieldEquals(t *testing.T) {
	require.True(t, NewIntField(1).Equals(NewIntField(1)))
	require.False(t, NewIntField(1).Equals(NewIntField(2)))
	require.False(t, NewIntField(1).Equals(NewStringField("1")))

	require.True(t, NewStringField("a").Equals(NewStringField("a")))
	require.False(t, NewStringField("a").Equals(NewStringField("b")))
}
