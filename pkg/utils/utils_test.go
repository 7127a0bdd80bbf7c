package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestDecodeAudio(t *testing.T) {
	data, err := DecodeAudio(EncodeAudio([]byte("RIFFdata")))
	require.NoError(t, err)
	require.Equal(t, []byte("RIFFdata"), data)

	data, err = DecodeAudio("data:audio/wav;base64," + EncodeAudio([]byte("abc")))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), data)
}

func TestDecodeAudio_Errors(t *testing.T) {
	_, err := DecodeAudio("   ")
	require.ErrorIs(t, err, ErrEmptyAudio)

	_, err = DecodeAudio("data:audio/wav;base64,")
	require.ErrorIs(t, err, ErrEmptyAudio)

	_, err = DecodeAudio("data:audio/wav;base64")
	require.ErrorIs(t, err, ErrInvalidAudio)

	_, err = DecodeAudio("!!not base64!!")
	require.ErrorIs(t, err, ErrInvalidAudio)
	require.ErrorContains(t, err, "decode base64")
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	require.True(t, CheckPassword("s3cret", hash))
	require.False(t, CheckPassword("wrong", hash))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	require.Equal(t, bcrypt.MinCost, cost)
}

func TestPasswordHash_Invalid(t *testing.T) {
	_, err := HashPassword("   ", 0)
	require.ErrorIs(t, err, ErrEmptyPassword)

	_, err = HashPassword("s3cret", bcrypt.MaxCost+1)
	require.ErrorContains(t, err, "bcrypt cost")

	require.False(t, CheckPassword("", ""))
	require.False(t, CheckPassword("s3cret", "not-a-hash"))
}
