package solver_test

import (
	"crypto/aes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icpquery/internal/detect"
	"icpquery/internal/services"
	"icpquery/internal/solver"
)

const testSecret = "abcdefghijklmnop"

func decryptPoints(t *testing.T, payload, secret string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	block, err := aes.NewCipher([]byte(secret))
	require.NoError(t, err)
	require.Zero(t, len(raw)%block.BlockSize())
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], raw[i:i+block.BlockSize()])
	}
	pad := int(out[len(out)-1])
	require.True(t, pad > 0 && pad <= block.BlockSize())
	return string(out[:len(out)-pad])
}

func TestEncryptPointsKnownAnswer(t *testing.T) {
	got, err := solver.EncryptPoints([]solver.Point{{X: 185, Y: 70}, {X: 320, Y: 41}}, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "sEidV5kzJaC6irCiY2E/aiO3VKaqcw/BLYWOS5J1R2AidDFwR3uqFESB0ZPuonMq", got)
}

func TestEncryptPointsEmptyList(t *testing.T) {
	got, err := solver.EncryptPoints(nil, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "o3JNVXRje2A1LNwjf9NUFA==", got)
	assert.Equal(t, "[]", decryptPoints(t, got, testSecret))
}

func TestEncryptPointsRejectsBadKey(t *testing.T) {
	_, err := solver.EncryptPoints([]solver.Point{{X: 1, Y: 1}}, "short")
	require.ErrorIs(t, err, services.ErrRemote)
}

func TestClickPointsOffsetBoxCorner(t *testing.T) {
	boxes := []detect.Box{
		{X: 10, Y: 20, Width: 30, Height: 30},
		{X: 100, Y: 40, Width: 30, Height: 30},
	}
	assert.Equal(t, []solver.Point{{X: 120, Y: 60}, {X: 30, Y: 40}}, solver.ClickPoints(boxes, []int{1, 0}))
}
